package feed

import (
	"strings"
	"time"

	"xprice/internal/infrastructure/exchange"
)

// Options 行情源连接参数；模板占位符 {symbol} 和 {stream}
type Options struct {
	Name              string
	URLTemplate       string // e.g. wss://stream.binance.com:9443/ws/{stream}
	StreamTemplate    string // e.g. {symbol}@ticker
	SubscribeTemplate string // 连接建立后发送，为空则不发送
	Converter         *exchange.SymbolConverter

	MaxRetries  int
	RetryDelay  time.Duration
	DialTimeout time.Duration
	PingEvery   time.Duration
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "feed"
	}
	if o.StreamTemplate == "" {
		o.StreamTemplate = "{symbol}"
	}
	if o.Converter == nil {
		o.Converter = exchange.NewSymbolConverter(nil, false)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PingEvery <= 0 {
		o.PingEvery = 25 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	return o
}

// Endpoint 渲染某个交易对的连接地址和订阅消息
func (o Options) Endpoint(symbol string) (url string, subscribe []byte) {
	stream := o.Converter.Render(o.StreamTemplate, symbol)
	url = o.Converter.Render(strings.ReplaceAll(o.URLTemplate, "{stream}", stream), symbol)
	if o.SubscribeTemplate != "" {
		msg := o.Converter.Render(strings.ReplaceAll(o.SubscribeTemplate, "{stream}", stream), symbol)
		subscribe = []byte(msg)
	}
	return url, subscribe
}
