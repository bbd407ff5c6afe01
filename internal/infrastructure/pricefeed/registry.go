package pricefeed

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"xprice/internal/infrastructure/exchange"
	"xprice/internal/infrastructure/feed"
)

// Preset 某个行情源的默认连接模板
type Preset struct {
	URLTemplate       string
	StreamTemplate    string
	SubscribeTemplate string
	LowerCaseSymbol   bool
}

// registry maps feed names to their connection presets
var registry = make(map[string]Preset)

func init() {
	Register("binance", Preset{
		URLTemplate:     "wss://stream.binance.com:9443/ws/{stream}",
		StreamTemplate:  "{symbol}@ticker",
		LowerCaseSymbol: true,
	})
	Register("binance-us", Preset{
		URLTemplate:     "wss://stream.binance.us:9443/ws/{stream}",
		StreamTemplate:  "{symbol}@ticker",
		LowerCaseSymbol: true,
	})
	// 单连接 + 订阅消息，每个交易对仍单独建连
	Register("binance-subscribe", Preset{
		URLTemplate:       "wss://stream.binance.com:9443/ws",
		StreamTemplate:    "{symbol}@ticker",
		SubscribeTemplate: `{"method":"SUBSCRIBE","params":["{stream}"],"id":1}`,
		LowerCaseSymbol:   true,
	})
}

// Register 注册一个行情源预设，重复注册时覆盖
func Register(name string, p Preset) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || p.URLTemplate == "" {
		log.Warn().Str("feed", name).Msg("invalid price feed preset")
		return
	}
	if _, exists := registry[name]; exists {
		log.Warn().Str("feed", name).Msg("price feed preset already registered, overwriting")
	}
	registry[name] = p
	log.Debug().Str("feed", name).Msg("price feed preset registered")
}

// Get 获取已注册的预设
func Get(name string) (Preset, bool) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spec 配置里的行情源参数，模板为空时用预设补齐
type Spec struct {
	Name              string
	URLTemplate       string
	StreamTemplate    string
	SubscribeTemplate string
	LowerCaseSymbol   bool
	Aliases           map[string]string
}

// Resolve 合并预设和显式配置，生成 feed.Options（重试/超时参数由调用方填写）
func Resolve(spec Spec) (feed.Options, error) {
	p, ok := Get(spec.Name)
	if spec.URLTemplate == "" {
		if !ok {
			return feed.Options{}, &UnknownFeedError{Name: spec.Name}
		}
		spec.URLTemplate = p.URLTemplate
		if spec.SubscribeTemplate == "" {
			spec.SubscribeTemplate = p.SubscribeTemplate
		}
		if spec.StreamTemplate == "" {
			spec.StreamTemplate = p.StreamTemplate
			spec.LowerCaseSymbol = spec.LowerCaseSymbol || p.LowerCaseSymbol
		}
	}
	return feed.Options{
		Name:              spec.Name,
		URLTemplate:       spec.URLTemplate,
		StreamTemplate:    spec.StreamTemplate,
		SubscribeTemplate: spec.SubscribeTemplate,
		Converter:         exchange.NewSymbolConverter(spec.Aliases, spec.LowerCaseSymbol),
	}, nil
}

type UnknownFeedError struct {
	Name string
}

func (e *UnknownFeedError) Error() string {
	return "unknown price feed " + e.Name + " (known: " + strings.Join(Names(), ", ") + ") and no url_template"
}
