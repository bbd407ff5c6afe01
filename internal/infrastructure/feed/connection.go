package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xprice/internal/application/port"
	"xprice/internal/domain"
	"xprice/internal/infrastructure/exchange"
)

// Connection 一个交易对一条 websocket 连接，重试计数互相独立
type Connection struct {
	symbol     string
	opts       Options
	url        string
	subscribe  []byte
	normalizer *exchange.TickerNormalizer
	sink       port.TickSink
	notifier   port.Notifier
	dialer     *websocket.Dialer
	logger     zerolog.Logger

	mu       sync.Mutex
	state    State
	retries  int // 自上次连接成功以来的连续失败次数
	attempts int
}

func NewConnection(symbol string, opts Options, normalizer *exchange.TickerNormalizer, sink port.TickSink, notifier port.Notifier) *Connection {
	opts = opts.withDefaults()
	url, sub := opts.Endpoint(symbol)
	return &Connection{
		symbol:     symbol,
		opts:       opts,
		url:        url,
		subscribe:  sub,
		normalizer: normalizer,
		sink:       sink,
		notifier:   notifier,
		dialer:     websocket.DefaultDialer,
		logger:     log.With().Str("feed", opts.Name).Str("symbol", symbol).Logger(),
	}
}

func (c *Connection) Symbol() string { return c.symbol }

func (c *Connection) URL() string { return c.url }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts 累计发起的连接次数
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run 连接并持续读取，断线后按固定间隔重连。
// 连续失败超过 MaxRetries 次后告警一次并返回 domain.ErrFeedExhausted；
// ctx 取消时返回 nil
func (c *Connection) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}

		c.mu.Lock()
		c.state = StateConnecting
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		c.logger.Info().Int("attempt", attempt).Str("url", c.url).Msg("ws connecting")
		err := c.session(ctx)

		if ctx.Err() != nil {
			c.setState(StateClosed)
			c.logger.Info().Msg("ws closed")
			return nil
		}

		c.mu.Lock()
		if c.retries >= c.opts.MaxRetries {
			c.state = StateExhausted
			retries := c.retries
			c.mu.Unlock()

			c.logger.Error().Err(err).Int("retries", retries).Msg("feed exhausted")
			c.notify(ctx, "feed exhausted", map[string]any{
				"feed":     c.opts.Name,
				"symbol":   c.symbol,
				"attempts": attempt,
				"error":    errString(err),
			})
			return fmt.Errorf("%s %s: %w", c.opts.Name, c.symbol, domain.ErrFeedExhausted)
		}
		c.retries++
		retry := c.retries
		c.state = StateBackoff
		c.mu.Unlock()

		c.logger.Warn().Err(err).
			Int("retry", retry).
			Int("max_retries", c.opts.MaxRetries).
			Dur("delay", c.opts.RetryDelay).
			Msg("ws disconnected, reconnecting")

		timer := time.NewTimer(c.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateClosed)
			return nil
		case <-timer.C:
		}
	}
}

func (c *Connection) session(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, _, err := c.dialer.DialContext(dctx, c.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if len(c.subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, c.subscribe); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.mu.Lock()
	c.state = StateConnected
	c.retries = 0
	c.mu.Unlock()
	c.logger.Info().Msg("ws connected")

	return c.readLoop(ctx, conn)
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	timeout := c.opts.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	pingTicker := time.NewTicker(c.opts.PingEvery)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			c.handle(ctx, b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

// handle 单条消息的处理边界：异常恢复后继续读下一条
func (c *Connection) handle(ctx context.Context, b []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("tick handler panicked")
			c.notify(ctx, "tick handler panicked", map[string]any{
				"feed":   c.opts.Name,
				"symbol": c.symbol,
				"panic":  fmt.Sprint(r),
			})
		}
	}()

	ticks, err := c.normalizer.Normalize(b)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			c.logger.Warn().Err(err).Msg("malformed payload dropped")
			c.notify(ctx, "malformed payload", map[string]any{
				"feed":   c.opts.Name,
				"symbol": c.symbol,
				"error":  err.Error(),
			})
		} else {
			c.logger.Debug().Err(err).Msg("tick dropped")
		}
	}

	for _, t := range ticks {
		if err := c.sink.ApplyTick(t); err != nil {
			c.logger.Warn().Err(err).Str("tick", t.Symbol).Msg("apply tick failed")
		}
	}
}

func (c *Connection) notify(ctx context.Context, msg string, fields map[string]any) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, msg, fields)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
