package pricing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xprice/internal/domain"
	"xprice/internal/infrastructure/clock"
)

// Aggregator 每个订阅者一个滚动（tumbling）窗口，累计 bid/ask 的最高最低价，
// 窗口到期时回调订阅者并清空缓冲区
type Aggregator struct {
	mu     sync.Mutex
	clock  clock.Clock
	book   *domain.Book
	subs   map[string]*subscriber
	cycle  uint64 // 全局递增，重新订阅同名订阅者不会复用旧周期号
	closed bool
	logger zerolog.Logger
}

type subscriber struct {
	name     string
	interval time.Duration
	handler  HighLowHandler
	buffer   domain.HighLowSnapshot
	open     bool // 窗口空闲，下一个 tick 开启新周期
	timer    clock.Timer
	cycle    uint64
}

// NewAggregator book 用于新周期开启时把所有已知交易对灌入缓冲区
func NewAggregator(book *domain.Book, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{
		clock:  clk,
		book:   book,
		subs:   make(map[string]*subscriber),
		logger: log.With().Str("component", "highlow").Logger(),
	}
}

// Subscribe 注册订阅者；name 已存在时返回 domain.ErrAlreadyExists
func (a *Aggregator) Subscribe(name string, interval time.Duration, h HighLowHandler) error {
	if name == "" {
		return errors.New("subscriber name empty")
	}
	if interval <= 0 {
		return fmt.Errorf("subscriber %s: interval must be positive", name)
	}
	if h == nil {
		return fmt.Errorf("subscriber %s: nil handler", name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.subs[name]; exists {
		return fmt.Errorf("subscriber %s: %w", name, domain.ErrAlreadyExists)
	}
	a.subs[name] = &subscriber{
		name:     name,
		interval: interval,
		handler:  h,
		open:     true,
	}
	a.logger.Info().Str("name", name).Dur("interval", interval).Msg("subscriber registered")
	return nil
}

// Unsubscribe 移除订阅者并取消未触发的定时器
func (a *Aggregator) Unsubscribe(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[name]
	if !ok {
		return false
	}
	if sub.timer != nil {
		sub.timer.Stop()
	}
	delete(a.subs, name)
	return true
}

// Observe 合并一个已写入 book 的 ticker 到所有订阅者窗口
func (a *Aggregator) Observe(t domain.Ticker) {
	if t.BestBid.IsZero() && t.BestAsk.IsZero() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || len(a.subs) == 0 {
		return
	}

	now := a.clock.Now()
	var seed map[string]domain.Ticker
	for _, sub := range a.subs {
		if !sub.open {
			mergeInto(sub.buffer, t, now)
			continue
		}

		sub.open = false
		a.cycle++
		sub.cycle = a.cycle
		sub.buffer = domain.HighLowSnapshot{t.Symbol: domain.NewHighLowEntry(t, now)}
		name, cycle := sub.name, sub.cycle
		sub.timer = a.clock.AfterFunc(sub.interval, func() { a.flush(name, cycle) })

		if seed == nil && a.book != nil {
			seed = a.book.Snapshot()
		}
		for sym, bt := range seed {
			if sym == t.Symbol || (bt.BestBid.IsZero() && bt.BestAsk.IsZero()) {
				continue
			}
			mergeInto(sub.buffer, bt, now)
		}
	}
}

func mergeInto(buf domain.HighLowSnapshot, t domain.Ticker, now time.Time) {
	e, ok := buf[t.Symbol]
	if !ok {
		buf[t.Symbol] = domain.NewHighLowEntry(t, now)
		return
	}
	e.Merge(t, now)
	buf[t.Symbol] = e
}

func (a *Aggregator) flush(name string, cycle uint64) {
	a.mu.Lock()
	sub, ok := a.subs[name]
	if !ok || sub.cycle != cycle || sub.open {
		a.mu.Unlock()
		return
	}
	snap := sub.buffer
	sub.buffer = nil
	sub.open = true
	sub.timer = nil
	h := sub.handler
	a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Str("name", name).Interface("panic", r).Msg("high/low handler panicked")
		}
	}()
	h(snap)
}

// Buffer 返回订阅者当前窗口缓冲区的副本
func (a *Aggregator) Buffer(name string) (domain.HighLowSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[name]
	if !ok {
		return nil, false
	}
	out := make(domain.HighLowSnapshot, len(sub.buffer))
	for k, v := range sub.buffer {
		out[k] = v
	}
	return out, true
}

// Subscribers 已注册的订阅者名称（字典序）
func (a *Aggregator) Subscribers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.subs))
	for name := range a.subs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close 停止所有窗口定时器，之后的 tick 不再累计
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for _, sub := range a.subs {
		if sub.timer != nil {
			sub.timer.Stop()
			sub.timer = nil
		}
	}
}
