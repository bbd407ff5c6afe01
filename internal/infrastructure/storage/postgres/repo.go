package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) Name() string { return "postgres" }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reference_prices (
  quote TEXT NOT NULL,
  base TEXT NOT NULL,
  price TEXT NOT NULL,
  high TEXT NOT NULL DEFAULT '0',
  low TEXT NOT NULL DEFAULT '0',
  ts_ms BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY(quote, base)
);
CREATE INDEX IF NOT EXISTS idx_reference_prices_ts ON reference_prices(ts_ms);
`)
	return err
}

func (r *Repo) UpsertMarketPrice(ctx context.Context, m domain.MarketPrice) error {
	base := strings.ToUpper(strings.TrimSpace(m.Base))
	quote := strings.ToUpper(strings.TrimSpace(m.Quote))
	if base == "" || quote == "" {
		return fmt.Errorf("%w: reference price without base/quote", domain.ErrInvalidQuoteAsset)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reference_prices(quote, base, price, high, low, ts_ms, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(quote, base) DO UPDATE SET
		price=EXCLUDED.price, high=EXCLUDED.high, low=EXCLUDED.low, ts_ms=EXCLUDED.ts_ms, updated_at=EXCLUDED.updated_at
	`, quote, base, m.Price.String(), m.High.String(), m.Low.String(), m.Time, time.Now().UnixMilli())
	return err
}

func (r *Repo) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))

	var price, high, low string
	var ts int64
	err := r.db.QueryRowContext(ctx,
		`SELECT price, high, low, ts_ms FROM reference_prices WHERE quote=$1 AND base=$2`, quote, base).
		Scan(&price, &high, &low, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s%s: %w", base, quote, domain.ErrPriceUnavailable)
	}
	if err != nil {
		return nil, err
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("%w: %s%s price %q", domain.ErrMalformedPayload, base, quote, price)
	}
	m := &domain.MarketPrice{Symbol: base + quote, Base: base, Quote: quote, Price: p, Time: ts}
	m.High, _ = decimal.NewFromString(high)
	m.Low, _ = decimal.NewFromString(low)
	if !m.Valid() {
		return nil, fmt.Errorf("%s%s: %w", base, quote, domain.ErrPriceUnavailable)
	}
	return m, nil
}

var _ port.ReferencePriceSource = (*Repo)(nil)
