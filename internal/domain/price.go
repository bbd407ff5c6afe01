package domain

import "github.com/shopspring/decimal"

// PriceDecimal is the fixed display precision of every stored price.
const PriceDecimal int32 = 8

var one = decimal.NewFromInt(1)

// One returns the decimal 1, used for identity legs and identity pairs.
func One() decimal.Decimal { return one }

// RoundPrice applies the engine-wide rounding rule: truncate to PriceDecimal digits.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(PriceDecimal)
}

// DivPrice divides a by b and rounds the result.
// ok is false when b is zero.
func DivPrice(a, b decimal.Decimal) (decimal.Decimal, bool) {
	if b.IsZero() {
		return decimal.Zero, false
	}
	return RoundPrice(a.Div(b)), true
}

// Side is the aggressive side guessed from the last price movement.
type Side int

const (
	SideBuy  Side = +1
	SideSell Side = -1
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// MatchSide compares the new last price with the previously stored one.
// No previous value, or a rise, means the taker lifted the ask.
func MatchSide(prev, next decimal.Decimal, hasPrev bool) Side {
	if !hasPrev || !prev.IsPositive() {
		return SideBuy
	}
	if next.GreaterThan(prev) {
		return SideBuy
	}
	return SideSell
}

// ConvertRate translates a price expressed in one quote asset into another.
// Bid and Ask carry the spread adjustment, Price the plain quote substitution.
type ConvertRate struct {
	Bid   decimal.Decimal
	Ask   decimal.Decimal
	Price decimal.Decimal
}

// SpreadRate builds the same-quote rate for a spread ratio (0 means no spread).
func SpreadRate(spreadRatio decimal.Decimal) ConvertRate {
	return ConvertRate{
		Bid:   one.Sub(spreadRatio),
		Ask:   one.Add(spreadRatio),
		Price: one,
	}
}

// Close returns the effective close price for the given side:
// a buy matches the ask side (closeSell), a sell the bid side (closeBuy).
func (r ConvertRate) Close(last decimal.Decimal, side Side) decimal.Decimal {
	if side == SideBuy {
		return RoundPrice(last.Mul(r.Ask))
	}
	return RoundPrice(last.Mul(r.Bid))
}
