package exchange

import (
	"strings"
)

// SymbolConverter 规范交易对 <-> 交易所交易对
// 交易所 -> 规范方向由 domain.Assets 的别名规则完成，这里只做反向渲染
type SymbolConverter struct {
	lower   bool
	reverse map[string]string // canonical symbol -> exchange symbol
}

// NewSymbolConverter aliases 为 exchange code -> canonical code
func NewSymbolConverter(aliases map[string]string, lower bool) *SymbolConverter {
	rev := make(map[string]string, len(aliases))
	for ex, canon := range aliases {
		ex = strings.ToUpper(strings.TrimSpace(ex))
		canon = strings.ToUpper(strings.TrimSpace(canon))
		if ex == "" || canon == "" {
			continue
		}
		rev[canon] = ex
	}
	return &SymbolConverter{lower: lower, reverse: rev}
}

// ToExchange 例: BTCUSDT -> btcusdt
func (c *SymbolConverter) ToExchange(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return ""
	}
	if ex, ok := c.reverse[sym]; ok {
		sym = ex
	}
	if c.lower {
		return strings.ToLower(sym)
	}
	return sym
}

// Render 替换模板中的 {symbol} 占位符
func (c *SymbolConverter) Render(template, symbol string) string {
	return strings.ReplaceAll(template, "{symbol}", c.ToExchange(symbol))
}
