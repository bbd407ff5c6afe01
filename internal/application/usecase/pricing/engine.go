package pricing

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xprice/internal/domain"
)

type EngineDeps struct {
	Book        *domain.Book
	Aggregator  *Aggregator
	CrossRate   *domain.CrossRate
	SpreadRatio decimal.Decimal
	Anchor      Anchor
}

// Engine 价格引擎：写入 book 并同步扇出到 high/low 订阅者
// 每个 tick 的“写 book + 扇出”在 mu 内一次完成
type Engine struct {
	mu       sync.Mutex
	book     *domain.Book
	agg      *Aggregator
	resolver *Resolver
	rate     domain.ConvertRate
	anchor   Anchor
	logger   zerolog.Logger
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.Book == nil {
		deps.Book = domain.NewBook(nil)
	}
	if deps.CrossRate == nil {
		deps.CrossRate = domain.DefaultCrossRate()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewAggregator(deps.Book, nil)
	}
	if deps.Anchor.Base == "" || deps.Anchor.Quote == "" {
		deps.Anchor = DefaultAnchor()
	}
	return &Engine{
		book:     deps.Book,
		agg:      deps.Aggregator,
		resolver: NewResolver(deps.Book, deps.CrossRate),
		rate:     domain.SpreadRate(deps.SpreadRatio),
		anchor:   deps.Anchor.normalized(),
		logger:   log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) Book() *domain.Book { return e.book }

func (e *Engine) Aggregator() *Aggregator { return e.agg }

func (e *Engine) Anchor() Anchor { return e.anchor }

func (e *Engine) Assets() *domain.Assets { return e.book.Assets() }

// Tickers 整个 book 的副本
func (e *Engine) Tickers() map[string]domain.Ticker { return e.book.Snapshot() }

// Ticker 直接读取 book 中的一条记录
func (e *Engine) Ticker(symbol string) (domain.Ticker, bool) {
	return e.book.Get(symbol)
}

// ApplyTick 应用一个行情 tick：按成交方向推断取卖价或买价，bid/ask 同时写为该收盘价
func (e *Engine) ApplyTick(t domain.NormalizedTick) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, hasPrev := e.book.Get(t.Symbol)
	side := domain.MatchSide(prev.LastPrice, t.LastPrice, hasPrev)
	closePrice := e.rate.Close(t.LastPrice, side)

	ticker := domain.Ticker{
		Symbol:    t.Symbol,
		BestBid:   closePrice,
		BestAsk:   closePrice,
		LastPrice: domain.RoundPrice(t.LastPrice.Mul(e.rate.Price)),
	}
	if err := e.storeLocked(ticker); err != nil {
		return err
	}

	e.logger.Debug().
		Str("symbol", t.Symbol).
		Str("side", side.String()).
		Str("close", closePrice.String()).
		Msg("tick applied")

	if t.Symbol == e.anchor.Symbol() {
		return e.applyAnchorLocked(t.LastPrice, false)
	}
	return nil
}

// ApplyTicker 直接写入一个已计算好的 ticker（定时刷新路径）
func (e *Engine) ApplyTicker(t domain.Ticker) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storeLocked(t)
}

// ApplyAnchor 以锚定汇率 p 写入锚定对及其派生对
func (e *Engine) ApplyAnchor(p decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyAnchorLocked(p, true)
}

// SyntheticTickers 由锚定汇率派生的交易对：
// 等价币种互为 1，Quote/Base 取倒数，等价币种复用锚定价
func (e *Engine) SyntheticTickers(p decimal.Decimal, includeAnchor bool) ([]domain.Ticker, error) {
	inv, ok := domain.DivPrice(domain.One(), p)
	if !ok || !p.IsPositive() {
		return nil, fmt.Errorf("%w: anchor rate %s", domain.ErrMalformedPayload, p)
	}
	a := e.anchor

	out := make([]domain.Ticker, 0, 2+4*len(a.Equivalents))
	for _, eq := range a.Equivalents {
		out = append(out,
			domain.FlatTicker(a.Quote+eq, domain.One()),
			domain.FlatTicker(eq+a.Quote, domain.One()),
		)
	}
	out = append(out, domain.FlatTicker(a.Quote+a.Base, inv))
	for _, eq := range a.Equivalents {
		out = append(out, domain.FlatTicker(eq+a.Base, inv))
	}
	if includeAnchor {
		out = append(out, domain.FlatTicker(a.Symbol(), p))
	}
	for _, eq := range a.Equivalents {
		out = append(out, domain.FlatTicker(a.Base+eq, p))
	}
	return out, nil
}

func (e *Engine) applyAnchorLocked(p decimal.Decimal, includeAnchor bool) error {
	tickers, err := e.SyntheticTickers(p, includeAnchor)
	if err != nil {
		return err
	}
	for _, t := range tickers {
		if err := e.storeLocked(t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) storeLocked(t domain.Ticker) error {
	if err := e.book.Put(t); err != nil {
		return err
	}
	stored, _ := e.book.Get(t.Symbol)
	e.agg.Observe(stored)
	return nil
}

// Price 见 Resolver.Price
func (e *Engine) Price(symbol string, pair *domain.Pair) *domain.Ticker {
	return e.resolver.Price(symbol, pair)
}

// HighLowPrice 见 Resolver.HighLowPrice
func (e *Engine) HighLowPrice(symbol string, pair *domain.Pair, window domain.HighLowSnapshot) *domain.HighLowEntry {
	return e.resolver.HighLowPrice(symbol, pair, window)
}

// SubscribeHighLowInterval 注册一个 high/low 窗口订阅者，name 必须唯一
func (e *Engine) SubscribeHighLowInterval(name string, interval time.Duration, h HighLowHandler) error {
	return e.agg.Subscribe(name, interval, h)
}

// UnsubscribeHighLowInterval 取消订阅并停止其定时器
func (e *Engine) UnsubscribeHighLowInterval(name string) bool {
	return e.agg.Unsubscribe(name)
}
