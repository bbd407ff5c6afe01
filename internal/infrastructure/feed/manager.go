package feed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"xprice/internal/application/port"
	"xprice/internal/infrastructure/exchange"
)

// Manager 管理所有交易对的连接；单个交易对放弃重连不影响其它交易对
type Manager struct {
	opts       Options
	normalizer *exchange.TickerNormalizer
	sink       port.TickSink
	notifier   port.Notifier

	mu    sync.Mutex
	conns map[string]*Connection
}

func NewManager(opts Options, normalizer *exchange.TickerNormalizer, sink port.TickSink, notifier port.Notifier) *Manager {
	return &Manager{
		opts:       opts.withDefaults(),
		normalizer: normalizer,
		sink:       sink,
		notifier:   notifier,
		conns:      make(map[string]*Connection),
	}
}

func (m *Manager) Name() string { return m.opts.Name }

// Add 注册交易对，重复的忽略；必须在 Run 之前调用
func (m *Manager) Add(symbols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, exists := m.conns[s]; exists {
			log.Warn().Str("feed", m.opts.Name).Str("symbol", s).Msg("symbol already added")
			continue
		}
		m.conns[s] = NewConnection(s, m.opts, m.normalizer, m.sink, m.notifier)
	}
}

func (m *Manager) Connection(symbol string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[strings.ToUpper(symbol)]
	return c, ok
}

func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.conns))
	for s := range m.conns {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// States 每个交易对当前的连接状态
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.conns))
	for s, c := range m.conns {
		out[s] = c.State()
	}
	return out
}

// Run 并发运行所有连接，全部结束后返回放弃重连的交易对错误
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	if len(conns) == 0 {
		return errors.New("feed has no symbols")
	}

	log.Info().Str("feed", m.opts.Name).Int("symbols", len(conns)).Msg("feed started")

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				emu.Lock()
				errs = append(errs, err)
				emu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	return errors.Join(errs...)
}

var _ port.PriceFeed = (*Manager)(nil)
