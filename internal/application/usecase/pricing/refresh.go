package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

// ReferenceAsset 不在实时行情里的币种，只能从参考价源获取
type ReferenceAsset struct {
	Base     string
	Fallback decimal.Decimal // 参考价源和 book 都没有值时使用
}

type RefreshDeps struct {
	Engine         *Engine
	Source         port.ReferencePriceSource
	Watch          port.MarketWatchSource // 可选，启动预热
	Notifier       port.Notifier
	Assets         []ReferenceAsset
	AnchorFallback decimal.Decimal
	ReferenceEvery time.Duration
	AnchorEvery    time.Duration
	MaxAge         time.Duration // 预热时忽略更旧的行情
	Now            func() time.Time
}

// Refresher 定时把参考价合并进 book，与实时 tick 走同一条写入路径
type Refresher struct {
	deps   RefreshDeps
	logger zerolog.Logger
}

func NewRefresher(deps RefreshDeps) *Refresher {
	if deps.ReferenceEvery <= 0 {
		deps.ReferenceEvery = 3 * time.Second
	}
	if deps.AnchorEvery <= 0 {
		deps.AnchorEvery = time.Minute
	}
	if deps.MaxAge <= 0 {
		deps.MaxAge = 7 * 24 * time.Hour
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Refresher{
		deps:   deps,
		logger: log.With().Str("component", "refresh").Logger(),
	}
}

// Start 首次立即同步，然后按 ReferenceEvery / AnchorEvery 定时刷新，ctx 取消时停止
func (r *Refresher) Start(ctx context.Context) error {
	r.RefreshAnchor(ctx)
	r.RefreshReference(ctx)

	logger := cronLogger{r.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(every(r.deps.ReferenceEvery), func() { r.RefreshReference(ctx) }); err != nil {
		return fmt.Errorf("schedule reference refresh: %w", err)
	}
	if _, err := c.AddFunc(every(r.deps.AnchorEvery), func() { r.RefreshAnchor(ctx) }); err != nil {
		return fmt.Errorf("schedule anchor refresh: %w", err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		r.logger.Debug().Msg("refresh jobs stopped")
	}()
	return nil
}

func every(d time.Duration) string { return "@every " + d.String() }

// cronLogger 把 cron 的日志转到 zerolog
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}

// Bootstrap 拉取全量行情预热 book，返回写入的交易对数量
func (r *Refresher) Bootstrap(ctx context.Context) (int, error) {
	if r.deps.Watch == nil {
		return 0, nil
	}
	list, err := r.deps.Watch.MarketWatch(ctx)
	if err != nil {
		return 0, err
	}

	e := r.deps.Engine
	anchor := e.Anchor().Symbol()
	now := r.deps.Now()
	applied := 0
	for _, m := range list {
		if m.Time > 0 && now.Sub(time.UnixMilli(m.Time)) > r.deps.MaxAge {
			continue
		}
		if m.Symbol == anchor {
			p := m.Price
			if !p.IsPositive() {
				p = r.deps.AnchorFallback
			}
			if err := e.ApplyAnchor(p); err != nil {
				r.logger.Warn().Err(err).Str("symbol", m.Symbol).Msg("bootstrap anchor skipped")
				continue
			}
			applied++
			continue
		}
		tick, err := e.Assets().NewNormalizedTick(m.Symbol, m.Price)
		if err != nil {
			r.logger.Debug().Err(err).Str("symbol", m.Symbol).Msg("bootstrap entry skipped")
			continue
		}
		if err := e.ApplyTick(tick); err != nil {
			r.logger.Warn().Err(err).Str("symbol", m.Symbol).Msg("bootstrap entry failed")
			continue
		}
		applied++
	}

	r.logger.Info().Int("received", len(list)).Int("applied", applied).Msg("book bootstrapped")
	return applied, nil
}

// RefreshAnchor 刷新锚定汇率；参考价源不可用时保留 book 中的旧值，
// 都没有时才使用默认常量
func (r *Refresher) RefreshAnchor(ctx context.Context) {
	e := r.deps.Engine
	a := e.Anchor()

	p, err := r.fetch(ctx, a.Base, a.Quote)
	if err == nil {
		if err := e.ApplyAnchor(p); err != nil {
			r.logger.Error().Err(err).Str("symbol", a.Symbol()).Msg("apply anchor failed")
		}
		return
	}

	if _, ok := e.Ticker(a.Symbol()); ok {
		r.logger.Warn().Err(err).Str("symbol", a.Symbol()).Msg("anchor source unavailable, keeping last value")
		return
	}

	r.notify(ctx, "anchor rate fallback", map[string]any{
		"symbol":   a.Symbol(),
		"fallback": r.deps.AnchorFallback.String(),
		"error":    err.Error(),
	})
	if err := e.ApplyAnchor(r.deps.AnchorFallback); err != nil {
		r.logger.Error().Err(err).Str("symbol", a.Symbol()).Msg("apply anchor fallback failed")
	}
}

// RefreshReference 刷新不在实时行情中的币种，锚定汇率未知时跳过
func (r *Refresher) RefreshReference(ctx context.Context) {
	e := r.deps.Engine
	a := e.Anchor()

	anchor, ok := e.Ticker(a.Symbol())
	if !ok || !anchor.LastPrice.IsPositive() {
		r.logger.Debug().Str("symbol", a.Symbol()).Msg("anchor unknown, reference refresh skipped")
		return
	}

	for _, asset := range r.deps.Assets {
		if err := r.refreshAsset(ctx, asset, anchor.LastPrice); err != nil {
			r.logger.Error().Err(err).Str("asset", asset.Base).Msg("reference refresh failed")
		}
	}
}

func (r *Refresher) refreshAsset(ctx context.Context, asset ReferenceAsset, anchorPrice decimal.Decimal) error {
	e := r.deps.Engine
	a := e.Anchor()

	primary := r.resolve(ctx, asset.Base, a.Quote, asset.Fallback)
	tickers := []domain.Ticker{domain.FlatTicker(asset.Base+a.Quote, primary)}
	// 等价计价币查不到时跟随当前主报价，不使用 book 旧值
	for _, eq := range a.Equivalents {
		p, err := r.fetch(ctx, asset.Base, eq)
		if err != nil {
			p = primary
		}
		tickers = append(tickers, domain.FlatTicker(asset.Base+eq, p))
	}
	if usd, ok := domain.DivPrice(primary, anchorPrice); ok {
		tickers = append(tickers, domain.FlatTicker(asset.Base+a.Base, usd))
	}

	var errs []error
	for _, t := range tickers {
		if err := e.ApplyTicker(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolve 参考价 -> book 旧值 -> fallback
func (r *Refresher) resolve(ctx context.Context, base, quote string, fallback decimal.Decimal) decimal.Decimal {
	p, err := r.fetch(ctx, base, quote)
	if err == nil {
		return p
	}
	if prev, ok := r.deps.Engine.Ticker(base + quote); ok && prev.LastPrice.IsPositive() {
		return prev.LastPrice
	}
	r.notify(ctx, "reference price fallback", map[string]any{
		"symbol":   base + quote,
		"fallback": fallback.String(),
		"error":    err.Error(),
	})
	return fallback
}

func (r *Refresher) fetch(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if r.deps.Source == nil {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	m, err := r.deps.Source.MarketPrice(ctx, base, quote)
	if err != nil {
		return decimal.Zero, err
	}
	if !m.Valid() {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return m.Price, nil
}

func (r *Refresher) notify(ctx context.Context, msg string, fields map[string]any) {
	r.logger.Warn().Fields(fields).Msg(msg)
	if r.deps.Notifier != nil {
		r.deps.Notifier.Notify(ctx, msg, fields)
	}
}
