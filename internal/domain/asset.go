package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Default quote assets of the engine.
const (
	AssetUSDT = "USDT"
	AssetVNDC = "VNDC"
	AssetVNST = "VNST"
)

// MinSymbolLen is the shortest valid BASE+QUOTE symbol.
const MinSymbolLen = 4

// Assets holds the supported quote set and the symbol alias rules.
type Assets struct {
	quotes  []string          // longest first, for suffix matching
	aliases map[string]string // exchange code -> canonical code
}

// NewAssets builds the asset rules. Codes are upper-cased.
func NewAssets(quotes []string, aliases map[string]string) *Assets {
	qs := make([]string, 0, len(quotes))
	seen := map[string]struct{}{}
	for _, q := range quotes {
		u := strings.ToUpper(strings.TrimSpace(q))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		qs = append(qs, u)
	}
	sort.SliceStable(qs, func(i, j int) bool { return len(qs[i]) > len(qs[j]) })

	al := make(map[string]string, len(aliases))
	for k, v := range aliases {
		al[strings.ToUpper(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}
	return &Assets{quotes: qs, aliases: al}
}

// DefaultAssets is the USDT/VNDC/VNST quote set without aliases.
func DefaultAssets() *Assets {
	return NewAssets([]string{AssetUSDT, AssetVNDC, AssetVNST}, nil)
}

// IsQuote reports whether code is a supported quote asset.
func (a *Assets) IsQuote(code string) bool {
	code = strings.ToUpper(code)
	for _, q := range a.quotes {
		if q == code {
			return true
		}
	}
	return false
}

// Canonical resolves an exchange-specific asset alias.
func (a *Assets) Canonical(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if c, ok := a.aliases[code]; ok {
		return c
	}
	return code
}

// Split separates a symbol into base and quote after applying aliases.
// A whole-symbol alias (e.g. a renamed market) is applied first.
func (a *Assets) Split(symbol string) (base, quote string, err error) {
	sym := a.Canonical(symbol)
	if len(sym) < MinSymbolLen {
		return "", "", fmt.Errorf("%w: symbol %q too short", ErrInvalidQuoteAsset, sym)
	}
	for _, q := range a.quotes {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			return a.Canonical(strings.TrimSuffix(sym, q)), q, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrInvalidQuoteAsset, sym)
}

// NormalizedTick is a feed tick reduced to canonical asset codes.
type NormalizedTick struct {
	Symbol    string
	Base      string
	Quote     string
	LastPrice decimal.Decimal
}

// NewNormalizedTick validates symbol and price.
func (a *Assets) NewNormalizedTick(symbol string, last decimal.Decimal) (NormalizedTick, error) {
	base, quote, err := a.Split(symbol)
	if err != nil {
		return NormalizedTick{}, err
	}
	if !a.IsQuote(quote) {
		return NormalizedTick{}, fmt.Errorf("%w: %s", ErrInvalidQuoteAsset, quote)
	}
	if last.IsNegative() {
		return NormalizedTick{}, fmt.Errorf("%w: negative last price for %s", ErrMalformedPayload, symbol)
	}
	return NormalizedTick{
		Symbol:    base + quote,
		Base:      base,
		Quote:     quote,
		LastPrice: last,
	}, nil
}

// ValidSymbol reports whether symbol is a BASE+QUOTE with a supported quote.
func (a *Assets) ValidSymbol(symbol string) bool {
	_, _, err := a.Split(symbol)
	return err == nil
}
