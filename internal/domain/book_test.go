package domain

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBookPutGet(t *testing.T) {
	b := NewBook(nil)

	if err := b.Put(FlatTicker("btcusdt", decimal.NewFromInt(43000))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := b.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected BTCUSDT in book")
	}
	if !got.LastPrice.Equal(decimal.NewFromInt(43000)) {
		t.Errorf("expected 43000, got %s", got.LastPrice)
	}

	if err := b.Put(FlatTicker("BTCEUR", decimal.NewFromInt(1))); !errors.Is(err, ErrInvalidQuoteAsset) {
		t.Errorf("expected ErrInvalidQuoteAsset, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 symbol, got %d", b.Len())
	}
}

func TestBookSnapshotIsCopy(t *testing.T) {
	b := NewBook(nil)
	_ = b.Put(FlatTicker("ETHUSDT", decimal.NewFromInt(2300)))

	snap := b.Snapshot()
	snap["ETHUSDT"] = FlatTicker("ETHUSDT", decimal.NewFromInt(1))

	got, _ := b.Get("ETHUSDT")
	if !got.LastPrice.Equal(decimal.NewFromInt(2300)) {
		t.Errorf("snapshot mutation leaked into book: %s", got.LastPrice)
	}
}

func TestBookConcurrentWriters(t *testing.T) {
	b := NewBook(nil)
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "USDTVNDC"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				_ = b.Put(FlatTicker(sym, decimal.NewFromInt(int64(i))))
				_ = b.Snapshot()
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		got, ok := b.Get(sym)
		if !ok || !got.LastPrice.Equal(decimal.NewFromInt(100)) {
			t.Errorf("%s: expected last write 100, got %v", sym, got.LastPrice)
		}
	}
	if got := b.Symbols(); len(got) != len(symbols) || got[0] != "BTCUSDT" {
		t.Errorf("unexpected symbols %v", got)
	}
}
