package console

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"xprice/internal/domain"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Direction int

const (
	DirFlat Direction = iota
	DirUp
	DirDown
)

// Formatter 把一个 high/low 窗口渲染成一行
type Formatter struct {
	symbols []string // 为空时输出窗口内全部交易对
}

func NewFormatter(symbols []string) *Formatter {
	return &Formatter{symbols: symbols}
}

// Symbols 窗口中要输出的交易对（保持配置顺序，否则字典序）
func (f *Formatter) Symbols(snap domain.HighLowSnapshot) []string {
	if len(f.symbols) > 0 {
		return f.symbols
	}
	out := make([]string, 0, len(snap))
	for sym := range snap {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Render dirs 为每个交易对相对上一个窗口的方向
func (f *Formatter) Render(snap domain.HighLowSnapshot, dirs map[string]Direction) string {
	var sb strings.Builder
	sb.WriteString(colorize("[XPRICE] ", ansiDim))

	for i, sym := range f.Symbols(snap) {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		sb.WriteString(sym)
		sb.WriteString(" ")

		e, ok := snap[sym]
		if !ok {
			sb.WriteString(colorize("--", ansiYellow))
			continue
		}

		col := ansiYellow
		switch dirs[sym] {
		case DirUp:
			col = ansiGreen
		case DirDown:
			col = ansiRed
		}
		sb.WriteString(colorize("L:"+e.BidLow.String(), col))
		sb.WriteString(" ")
		sb.WriteString(colorize("H:"+e.AskHigh.String(), col))
	}
	return sb.String()
}

// DirectionOf 比较两个窗口的最高价
func DirectionOf(prev, cur decimal.Decimal) Direction {
	switch cur.Cmp(prev) {
	case 1:
		return DirUp
	case -1:
		return DirDown
	default:
		return DirFlat
	}
}
