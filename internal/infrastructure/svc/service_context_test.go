package svc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"xprice/internal/infrastructure/config"
	"xprice/internal/infrastructure/pricefeed"
)

func newMarketWatchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[
			{"s":"NAOVNDC","b":"NAO","q":"VNDC","p":"1520.5","t":1694591254832},
			{"s":"NAMIVNDC","p":"360","t":1694591254832},
			{"s":"DEADVNDC","b":"DEAD","q":"VNDC","p":"0","t":1694591254832}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustConfig(t *testing.T, data string) *config.Config {
	t.Helper()
	cfg, err := config.Decode(data)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg
}

func TestNewWiresReferenceChain(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newMarketWatchServer(t)
	cfg := mustConfig(t, fmt.Sprintf(`
[reference]
http_base_url = %q

[redis]
enabled = true
addr = %q

[sqlite]
enabled = true
path = %q
`, srv.URL, mr.Addr(), filepath.Join(t.TempDir(), "xprice.db")))

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	if got := sc.Reference().Name(); got != "composite(redis,sqlite,http)" {
		t.Errorf("unexpected reference chain %s", got)
	}
	if sc.Feeds() != nil {
		t.Error("feed disabled, expected nil manager")
	}
	subs := sc.Engine().Aggregator().Subscribers()
	if len(subs) != 1 || subs[0] != mirrorSubscriber {
		t.Errorf("expected only mirror subscriber, got %v", subs)
	}
}

func TestMirrorWindowWritesBook(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := mustConfig(t, fmt.Sprintf(`
[redis]
enabled = true
addr = %q
prefix = "t"
`, mr.Addr()))

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	tick, err := sc.Engine().Assets().NewNormalizedTick("BTCUSDT", decimal.NewFromInt(42000))
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Engine().ApplyTick(tick); err != nil {
		t.Fatal(err)
	}

	snap, _ := sc.Engine().Aggregator().Buffer(mirrorSubscriber)
	sc.mirrorWindow(snap)

	if v := mr.HGet("t:book", "BTCUSDT"); v == "" {
		t.Error("expected BTCUSDT mirrored into t:book")
	}
}

func TestSnapshotStoresReferencePrices(t *testing.T) {
	srv := newMarketWatchServer(t)
	cfg := mustConfig(t, fmt.Sprintf(`
[reference]
http_base_url = %q

[sqlite]
enabled = true
path = %q
`, srv.URL, filepath.Join(t.TempDir(), "xprice.db")))

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	n, err := sc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stored prices, got %d", n)
	}

	// http 单个查询返回空，命中的是 sqlite
	m, err := sc.Reference().MarketPrice(context.Background(), "NAMI", "VNDC")
	if err != nil {
		t.Fatalf("market price: %v", err)
	}
	if !m.Price.Equal(decimal.NewFromInt(360)) {
		t.Errorf("expected 360, got %s", m.Price)
	}
}

func TestSnapshotRequiresSQL(t *testing.T) {
	srv := newMarketWatchServer(t)
	cfg := mustConfig(t, fmt.Sprintf(`
[reference]
http_base_url = %q
`, srv.URL))

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	if _, err := sc.Snapshot(context.Background()); err == nil {
		t.Error("expected error without sql storage")
	}
}

func TestFeedWiredFromPreset(t *testing.T) {
	cfg := mustConfig(t, `
[feed]
enabled = true
symbols = ["ethusdt", "BTCUSDT"]

[console]
enabled = true
interval_sec = 5
`)

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer sc.Close()

	if got := sc.Feeds().Symbols(); len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Errorf("unexpected symbols %v", got)
	}
	c, ok := sc.Feeds().Connection("BTCUSDT")
	if !ok {
		t.Fatal("missing BTCUSDT connection")
	}
	if c.URL() != "wss://stream.binance.com:9443/ws/btcusdt@ticker" {
		t.Errorf("unexpected url %s", c.URL())
	}
	subs := sc.Engine().Aggregator().Subscribers()
	if len(subs) != 1 || subs[0] != consoleSubscriber {
		t.Errorf("expected console subscriber, got %v", subs)
	}
}

func TestUnknownFeedFails(t *testing.T) {
	cfg := mustConfig(t, `
[feed]
enabled = true
name = "nowhere"
symbols = ["BTCUSDT"]
`)

	_, err := New(context.Background(), cfg)
	var unknown *pricefeed.UnknownFeedError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFeedError, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := mustConfig(t, fmt.Sprintf(`
[redis]
enabled = true
addr = %q
`, addr))

	_, err := New(context.Background(), cfg)
	if !errors.Is(err, ErrStorageInitFailed) {
		t.Fatalf("expected ErrStorageInitFailed, got %v", err)
	}
}
