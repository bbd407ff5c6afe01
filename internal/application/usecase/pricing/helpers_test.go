package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"xprice/internal/domain"
	"xprice/internal/infrastructure/clock"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(spread string) (*Engine, *clock.Manual) {
	clk := clock.NewManual(time.UnixMilli(0))
	book := domain.NewBook(nil)
	eng := NewEngine(EngineDeps{
		Book:        book,
		Aggregator:  NewAggregator(book, clk),
		SpreadRatio: dec(spread),
	})
	return eng, clk
}

func mustTick(eng *Engine, symbol, last string) {
	tick, err := eng.Assets().NewNormalizedTick(symbol, dec(last))
	if err != nil {
		panic(err)
	}
	if err := eng.ApplyTick(tick); err != nil {
		panic(err)
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string, fields map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type fakeSource struct {
	prices map[string]string // BASEQUOTE -> price
	calls  int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	f.calls++
	p, ok := f.prices[base+quote]
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}
	return &domain.MarketPrice{Symbol: base + quote, Base: base, Quote: quote, Price: dec(p)}, nil
}

type fakeWatch struct {
	list []domain.MarketPrice
}

func (f *fakeWatch) MarketWatch(ctx context.Context) ([]domain.MarketPrice, error) {
	return f.list, nil
}
