package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

// Repo 参考价表，由运维或其他进程写入，刷新任务读取
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) Name() string { return "sqlite" }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reference_prices (
  quote TEXT NOT NULL,
  base TEXT NOT NULL,
  price TEXT NOT NULL,
  high TEXT NOT NULL DEFAULT '0',
  low TEXT NOT NULL DEFAULT '0',
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY(quote, base)
);
CREATE INDEX IF NOT EXISTS idx_reference_prices_ts ON reference_prices(ts_ms);
`)
	return err
}

// UpsertMarketPrice 价格以文本保存，避免浮点误差
func (r *Repo) UpsertMarketPrice(ctx context.Context, m domain.MarketPrice) error {
	base := strings.ToUpper(strings.TrimSpace(m.Base))
	quote := strings.ToUpper(strings.TrimSpace(m.Quote))
	if base == "" || quote == "" {
		return fmt.Errorf("%w: reference price without base/quote", domain.ErrInvalidQuoteAsset)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reference_prices(quote, base, price, high, low, ts_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(quote, base) DO UPDATE SET
		price=excluded.price, high=excluded.high, low=excluded.low, ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, quote, base, m.Price.String(), m.High.String(), m.Low.String(), m.Time, time.Now().UnixMilli())
	return err
}

func (r *Repo) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))

	row := r.db.QueryRowContext(ctx,
		`SELECT base, quote, price, high, low, ts_ms FROM reference_prices WHERE quote=? AND base=?`, quote, base)
	m, err := scanMarketPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s%s: %w", base, quote, domain.ErrPriceUnavailable)
	}
	if err != nil {
		return nil, err
	}
	if !m.Valid() {
		return nil, fmt.Errorf("%s%s: %w", base, quote, domain.ErrPriceUnavailable)
	}
	return m, nil
}

// MarketWatch 全表，按 ts 倒序
func (r *Repo) MarketWatch(ctx context.Context) ([]domain.MarketPrice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT base, quote, price, high, low, ts_ms FROM reference_prices ORDER BY ts_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MarketPrice
	for rows.Next() {
		m, err := scanMarketPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarketPrice(s scanner) (*domain.MarketPrice, error) {
	var (
		base, quote, price, high, low string
		ts                            int64
	)
	if err := s.Scan(&base, &quote, &price, &high, &low, &ts); err != nil {
		return nil, err
	}
	m := &domain.MarketPrice{Symbol: base + quote, Base: base, Quote: quote, Time: ts}
	var err error
	if m.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("%w: %s%s price %q", domain.ErrMalformedPayload, base, quote, price)
	}
	m.High, _ = decimal.NewFromString(high)
	m.Low, _ = decimal.NewFromString(low)
	return m, nil
}

var (
	_ port.ReferencePriceSource = (*Repo)(nil)
	_ port.MarketWatchSource    = (*Repo)(nil)
)
