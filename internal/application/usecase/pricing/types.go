package pricing

import (
	"strings"

	"xprice/internal/domain"
)

// HighLowHandler 接收一个窗口的 high/low 快照
type HighLowHandler func(snap domain.HighLowSnapshot)

// Anchor 锚定汇率（如 USDT/VNDC）及与 Quote 等价的币种（如 VNST）
type Anchor struct {
	Base        string
	Quote       string
	Equivalents []string
}

// DefaultAnchor USDT/VNDC，VNST 与 VNDC 等价
func DefaultAnchor() Anchor {
	return Anchor{
		Base:        domain.AssetUSDT,
		Quote:       domain.AssetVNDC,
		Equivalents: []string{domain.AssetVNST},
	}
}

// Symbol 锚定交易对，例如 USDTVNDC
func (a Anchor) Symbol() string { return a.Base + a.Quote }

func (a Anchor) normalized() Anchor {
	out := Anchor{
		Base:  strings.ToUpper(strings.TrimSpace(a.Base)),
		Quote: strings.ToUpper(strings.TrimSpace(a.Quote)),
	}
	for _, e := range a.Equivalents {
		if u := strings.ToUpper(strings.TrimSpace(e)); u != "" {
			out.Equivalents = append(out.Equivalents, u)
		}
	}
	return out
}
