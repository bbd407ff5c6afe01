package domain

import "strings"

// CrossRate derives prices for pairs that are not quoted directly by
// dividing two legs that share a common quote asset.
type CrossRate struct {
	priority []string
	fallback string
}

// NewCrossRate creates a resolver rule set. priority is the ordered list of
// candidate common quotes; fallback is used when every candidate collides.
func NewCrossRate(priority []string, fallback string) *CrossRate {
	ps := make([]string, 0, len(priority))
	for _, p := range priority {
		if u := strings.ToUpper(strings.TrimSpace(p)); u != "" {
			ps = append(ps, u)
		}
	}
	fallback = strings.ToUpper(strings.TrimSpace(fallback))
	if fallback == "" {
		fallback = AssetUSDT
	}
	return &CrossRate{priority: ps, fallback: fallback}
}

// DefaultCrossRate uses VNST, VNDC, USDT in that order with USDT as fallback.
func DefaultCrossRate() *CrossRate {
	return NewCrossRate([]string{AssetVNST, AssetVNDC, AssetUSDT}, AssetUSDT)
}

// CommonQuote returns the first priority quote that is neither side of the pair.
func (c *CrossRate) CommonQuote(p Pair) string {
	for _, q := range c.priority {
		if q != p.Base && q != p.Quote {
			return q
		}
	}
	return c.fallback
}

// Legs returns the symbols of the base and quote legs for p through q.
func Legs(p Pair, q string) (baseLeg, quoteLeg string) {
	return p.Base + q, p.Quote + q
}

// Ticker triangulates symbol through the common quote using lookup.
// ok is false when a leg is missing or a divisor is zero.
func (c *CrossRate) Ticker(symbol string, p Pair, lookup func(string) (Ticker, bool)) (Ticker, bool) {
	q := c.CommonQuote(p)
	base, ok := leg(p.Base, q, lookup, identityTicker)
	if !ok {
		return Ticker{}, false
	}
	quote, ok := leg(p.Quote, q, lookup, identityTicker)
	if !ok {
		return Ticker{}, false
	}

	bid, ok1 := DivPrice(base.BestBid, quote.BestBid)
	ask, ok2 := DivPrice(base.BestAsk, quote.BestAsk)
	last, ok3 := DivPrice(base.LastPrice, quote.LastPrice)
	if !ok1 || !ok2 || !ok3 {
		return Ticker{}, false
	}
	return Ticker{Symbol: symbol, BestBid: bid, BestAsk: ask, LastPrice: last}, true
}

// HighLow triangulates a window entry the same way, keeping the base leg's LastTick.
func (c *CrossRate) HighLow(p Pair, lookup func(string) (HighLowEntry, bool)) (HighLowEntry, bool) {
	q := c.CommonQuote(p)
	base, ok := leg(p.Base, q, lookup, identityHighLow)
	if !ok {
		return HighLowEntry{}, false
	}
	quote, ok := leg(p.Quote, q, lookup, identityHighLow)
	if !ok {
		return HighLowEntry{}, false
	}

	bidLow, ok1 := DivPrice(base.BidLow, quote.BidLow)
	askLow, ok2 := DivPrice(base.AskLow, quote.AskLow)
	bidHigh, ok3 := DivPrice(base.BidHigh, quote.BidHigh)
	askHigh, ok4 := DivPrice(base.AskHigh, quote.AskHigh)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return HighLowEntry{}, false
	}
	return HighLowEntry{
		BidLow:   bidLow,
		BidHigh:  bidHigh,
		AskLow:   askLow,
		AskHigh:  askHigh,
		LastTick: base.LastTick,
	}, true
}

func leg[T any](asset, q string, lookup func(string) (T, bool), identity func() T) (T, bool) {
	if asset == q {
		return identity(), true
	}
	return lookup(asset + q)
}
