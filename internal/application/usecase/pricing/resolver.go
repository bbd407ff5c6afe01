package pricing

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xprice/internal/domain"
)

// Resolver 读取 book，直接报价不存在时经共同计价币三角换算
type Resolver struct {
	book   *domain.Book
	cross  *domain.CrossRate
	logger zerolog.Logger
}

func NewResolver(book *domain.Book, cross *domain.CrossRate) *Resolver {
	return &Resolver{
		book:   book,
		cross:  cross,
		logger: log.With().Str("component", "resolver").Logger(),
	}
}

// Price 返回 symbol 的报价；无法确定时返回 nil（不是错误）
// pair 为空时按 symbol 的计价币拆分
func (r *Resolver) Price(symbol string, pair *domain.Pair) *domain.Ticker {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if t, ok := r.book.Get(symbol); ok {
		return &t
	}

	p, ok := r.pairOf(symbol, pair)
	if !ok {
		return nil
	}
	t, ok := r.cross.Ticker(symbol, p, r.book.Get)
	if !ok {
		r.logger.Debug().Str("symbol", symbol).Str("via", r.cross.CommonQuote(p)).Msg("no price found")
		return nil
	}
	return &t
}

// HighLowPrice 在一个窗口快照上做同样的三角换算
func (r *Resolver) HighLowPrice(symbol string, pair *domain.Pair, window domain.HighLowSnapshot) *domain.HighLowEntry {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if e, ok := window[symbol]; ok {
		return &e
	}

	p, ok := r.pairOf(symbol, pair)
	if !ok {
		return nil
	}
	e, ok := r.cross.HighLow(p, func(s string) (domain.HighLowEntry, bool) {
		v, ok := window[s]
		return v, ok
	})
	if !ok {
		r.logger.Warn().Str("symbol", symbol).Msg("no high/low price found")
		return nil
	}
	return &e
}

func (r *Resolver) pairOf(symbol string, pair *domain.Pair) (domain.Pair, bool) {
	if pair != nil && pair.Base != "" && pair.Quote != "" {
		return domain.Pair{
			Base:  strings.ToUpper(strings.TrimSpace(pair.Base)),
			Quote: strings.ToUpper(strings.TrimSpace(pair.Quote)),
		}, true
	}
	base, quote, err := r.book.Assets().Split(symbol)
	if err != nil {
		return domain.Pair{}, false
	}
	return domain.Pair{Base: base, Quote: quote}, true
}
