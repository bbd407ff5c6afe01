package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

type Options struct {
	Prefix         string
	TTL            time.Duration
	MarketWatchKey string            // hash: <key>:<quote> field: <base>
	HighLowChannel string            // 默认 prefix + ":highlow"
	AlertChannel   string            // 默认 prefix + ":alerts"
	AssetIDs       map[string]string // 资产代码 -> 哈希键中的 id
}

type Repo struct {
	rdb            *redis.Client
	prefix         string
	ttl            time.Duration
	keyBook        string // prefix + ":book"
	alertStream    string // prefix + ":alerts:stream"
	marketWatchKey string
	highLowChan    string
	alertChan      string
	assetIDs       map[string]string
}

func New(rdb *redis.Client, opts Options) *Repo {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "xprice"
	}
	if strings.TrimSpace(opts.MarketWatchKey) == "" {
		opts.MarketWatchKey = "market_watch"
	}
	if strings.TrimSpace(opts.HighLowChannel) == "" {
		opts.HighLowChannel = prefix + ":highlow"
	}
	if strings.TrimSpace(opts.AlertChannel) == "" {
		opts.AlertChannel = prefix + ":alerts"
	}
	ids := make(map[string]string, len(opts.AssetIDs))
	for code, id := range opts.AssetIDs {
		ids[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(id)
	}
	return &Repo{
		rdb:            rdb,
		prefix:         prefix,
		ttl:            opts.TTL,
		keyBook:        prefix + ":book",
		alertStream:    prefix + ":alerts:stream",
		marketWatchKey: opts.MarketWatchKey,
		highLowChan:    opts.HighLowChannel,
		alertChan:      opts.AlertChannel,
		assetIDs:       ids,
	}
}

func (r *Repo) Name() string { return "redis" }

func (r *Repo) assetKey(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if id, ok := r.assetIDs[code]; ok && id != "" {
		return id
	}
	return code
}

// MarketPrice HGET <market_watch>:<quote> <base>
func (r *Repo) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	hash := r.marketWatchKey + ":" + r.assetKey(quote)
	field := r.assetKey(base)

	raw, err := r.rdb.HGet(ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s %s: %w", hash, field, domain.ErrPriceUnavailable)
	}
	if err != nil {
		return nil, err
	}

	var m domain.MarketPrice
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrMalformedPayload, hash, field, err)
	}
	if !m.Valid() {
		return nil, fmt.Errorf("%s %s: %w", hash, field, domain.ErrPriceUnavailable)
	}
	if m.Base == "" {
		m.Base = strings.ToUpper(base)
	}
	if m.Quote == "" {
		m.Quote = strings.ToUpper(quote)
	}
	if m.Symbol == "" {
		m.Symbol = m.Base + m.Quote
	}
	return &m, nil
}

// UpsertTickers Hash: field = symbol -> ticker json
func (r *Repo) UpsertTickers(ctx context.Context, tickers map[string]domain.Ticker) error {
	if len(tickers) == 0 {
		return nil
	}
	values := make(map[string]any, len(tickers))
	for sym, t := range tickers {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		values[sym] = string(b)
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyBook, values)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyBook, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Tickers 读回镜像的 book
func (r *Repo) Tickers(ctx context.Context) (map[string]domain.Ticker, error) {
	raw, err := r.rdb.HGetAll(ctx, r.keyBook).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Ticker, len(raw))
	for sym, v := range raw {
		var t domain.Ticker
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("skip malformed mirrored ticker")
			continue
		}
		out[sym] = t
	}
	return out, nil
}

type highLowMessage struct {
	Name string                 `json:"name"`
	Ts   int64                  `json:"ts_ms"`
	Data domain.HighLowSnapshot `json:"data"`
}

// PublishHighLow PUBLISH <highlow channel> json
func (r *Repo) PublishHighLow(ctx context.Context, name string, snap domain.HighLowSnapshot) error {
	b, err := json.Marshal(highLowMessage{Name: name, Ts: time.Now().UnixMilli(), Data: snap})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.highLowChan, b).Err()
}

// Notify 告警写入 stream 并广播；失败只记录日志
func (r *Repo) Notify(ctx context.Context, message string, fields map[string]any) {
	payload, _ := json.Marshal(fields)
	ts := time.Now().UnixMilli()
	id := uuid.NewString()

	// 1) Stream: XADD <stream> * ts message fields
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.alertStream,
		Values: map[string]any{
			"id":      id,
			"ts_ms":   ts,
			"message": message,
			"fields":  string(payload),
		},
	}).Result()
	if err != nil {
		log.Error().Err(err).Str("message", message).Msg("redis alert xadd failed")
		return
	}

	// 2) PubSub: PUBLISH <channel> json
	msg, _ := json.Marshal(map[string]any{"id": id, "ts_ms": ts, "message": message, "fields": fields})
	if err := r.rdb.Publish(ctx, r.alertChan, msg).Err(); err != nil {
		log.Error().Err(err).Str("message", message).Msg("redis alert publish failed")
	}
}

var (
	_ port.ReferencePriceSource = (*Repo)(nil)
	_ port.BookMirror           = (*Repo)(nil)
	_ port.Notifier             = (*Repo)(nil)
)
