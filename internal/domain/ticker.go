package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the stored price snapshot of one symbol.
// BestBid and BestAsk both carry the effective close price, not a real top of book.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	BestBid   decimal.Decimal `json:"bestBid"`
	BestAsk   decimal.Decimal `json:"bestAsk"`
	LastPrice decimal.Decimal `json:"lastPrice"`
}

// FlatTicker builds a ticker whose bid, ask and last are all the same price.
func FlatTicker(symbol string, price decimal.Decimal) Ticker {
	return Ticker{Symbol: symbol, BestBid: price, BestAsk: price, LastPrice: price}
}

// identityTicker stands in for a leg whose asset is the common quote itself.
func identityTicker() Ticker {
	return FlatTicker("", one)
}

// Equal reports whether two tickers carry the same symbol and prices.
func (t Ticker) Equal(o Ticker) bool {
	return t.Symbol == o.Symbol &&
		t.BestBid.Equal(o.BestBid) &&
		t.BestAsk.Equal(o.BestAsk) &&
		t.LastPrice.Equal(o.LastPrice)
}

// HighLowEntry is the per-window min/max of one symbol.
type HighLowEntry struct {
	BidLow   decimal.Decimal `json:"bidLow"`
	BidHigh  decimal.Decimal `json:"bidHigh"`
	AskLow   decimal.Decimal `json:"askLow"`
	AskHigh  decimal.Decimal `json:"askHigh"`
	LastTick time.Time       `json:"lastTick"`
}

// NewHighLowEntry seeds a window entry from a single ticker.
func NewHighLowEntry(t Ticker, now time.Time) HighLowEntry {
	return HighLowEntry{
		BidLow:   t.BestBid,
		BidHigh:  t.BestBid,
		AskLow:   t.BestAsk,
		AskHigh:  t.BestAsk,
		LastTick: now,
	}
}

// Merge widens the entry with a new ticker.
func (e *HighLowEntry) Merge(t Ticker, now time.Time) {
	e.BidLow = decimal.Min(e.BidLow, t.BestBid)
	e.BidHigh = decimal.Max(e.BidHigh, t.BestBid)
	e.AskLow = decimal.Min(e.AskLow, t.BestAsk)
	e.AskHigh = decimal.Max(e.AskHigh, t.BestAsk)
	e.LastTick = now
}

func identityHighLow() HighLowEntry {
	return HighLowEntry{BidLow: one, BidHigh: one, AskLow: one, AskHigh: one}
}

// HighLowSnapshot is one flushed window: symbol -> entry.
type HighLowSnapshot map[string]HighLowEntry

// Pair is a requested base/quote combination.
type Pair struct {
	Base  string
	Quote string
}

// Symbol concatenates base and quote.
func (p Pair) Symbol() string { return p.Base + p.Quote }

// MarketPrice is a reference price record from the market-watch source.
type MarketPrice struct {
	Symbol string          `json:"s"`
	Base   string          `json:"b"`
	Quote  string          `json:"q"`
	Price  decimal.Decimal `json:"p"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Time   int64           `json:"t"` // unix ms
}

// Valid reports whether the record carries a usable price.
func (m *MarketPrice) Valid() bool {
	return m != nil && m.Price.IsPositive()
}
