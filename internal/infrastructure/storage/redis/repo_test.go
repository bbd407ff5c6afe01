package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"xprice/internal/domain"
)

func newTestRepo(t *testing.T, opts Options) (*Repo, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts), mr, rdb
}

func TestMarketPriceFromHash(t *testing.T) {
	repo, mr, _ := newTestRepo(t, Options{AssetIDs: map[string]string{"nao": "447", "VNDC": "39"}})
	mr.HSet("market_watch:39", "447", `{"s":"NAOVNDC","b":"NAO","q":"VNDC","p":"1520.5","t":1694591254832}`)

	m, err := repo.MarketPrice(context.Background(), "NAO", "VNDC")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Price.Equal(decimal.RequireFromString("1520.5")) || m.Symbol != "NAOVNDC" {
		t.Errorf("unexpected market price %+v", m)
	}
}

func TestMarketPriceFillsMissingSymbol(t *testing.T) {
	repo, mr, _ := newTestRepo(t, Options{})
	mr.HSet("market_watch:VNST", "NAMI", `{"p":360}`)

	m, err := repo.MarketPrice(context.Background(), "nami", "vnst")
	if err != nil {
		t.Fatal(err)
	}
	if m.Symbol != "NAMIVNST" || m.Base != "NAMI" || m.Quote != "VNST" {
		t.Errorf("unexpected market price %+v", m)
	}
}

func TestMarketPriceMissingOrInvalid(t *testing.T) {
	repo, mr, _ := newTestRepo(t, Options{})
	ctx := context.Background()

	if _, err := repo.MarketPrice(ctx, "NAO", "VNDC"); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("missing field: expected ErrPriceUnavailable, got %v", err)
	}

	mr.HSet("market_watch:VNDC", "NAO", `{"p":0}`)
	if _, err := repo.MarketPrice(ctx, "NAO", "VNDC"); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("zero price: expected ErrPriceUnavailable, got %v", err)
	}

	mr.HSet("market_watch:VNDC", "NAO", `not json`)
	if _, err := repo.MarketPrice(ctx, "NAO", "VNDC"); !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("bad json: expected ErrMalformedPayload, got %v", err)
	}
}

func TestUpsertTickersRoundTrip(t *testing.T) {
	repo, mr, _ := newTestRepo(t, Options{Prefix: "test", TTL: time.Minute})
	ctx := context.Background()

	in := map[string]domain.Ticker{
		"BTCUSDT":  domain.FlatTicker("BTCUSDT", decimal.RequireFromString("43000.12345678")),
		"VNDCUSDT": domain.FlatTicker("VNDCUSDT", decimal.RequireFromString("0.00004")),
	}
	if err := repo.UpsertTickers(ctx, in); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("test:book"); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %v", ttl)
	}

	out, err := repo.Tickers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for sym, want := range in {
		if got := out[sym]; !got.Equal(want) {
			t.Errorf("%s: got %+v want %+v", sym, got, want)
		}
	}

	if err := repo.UpsertTickers(ctx, nil); err != nil {
		t.Errorf("empty upsert: %v", err)
	}
}

func TestPublishHighLow(t *testing.T) {
	repo, _, rdb := newTestRepo(t, Options{Prefix: "test"})
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "test:highlow")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	snap := domain.HighLowSnapshot{"BTCUSDT": {BidLow: decimal.NewFromInt(1), BidHigh: decimal.NewFromInt(2)}}
	if err := repo.PublishHighLow(ctx, "ui", snap); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "test:highlow" || len(msg.Payload) == 0 {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no high/low message published")
	}
}

func TestNotifyWritesStream(t *testing.T) {
	repo, mr, _ := newTestRepo(t, Options{Prefix: "test"})

	repo.Notify(context.Background(), "feed exhausted", map[string]any{"symbol": "BTCUSDT"})

	entries, err := mr.Stream("test:alerts:stream")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one alert entry, got %d", len(entries))
	}
	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	if _, err := uuid.Parse(values["id"]); err != nil {
		t.Errorf("expected uuid alert id, got %q", values["id"])
	}
	if values["message"] != "feed exhausted" || values["fields"] != `{"symbol":"BTCUSDT"}` {
		t.Errorf("unexpected alert values %v", values)
	}
}
