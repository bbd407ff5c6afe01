package composite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

// Reference 按顺序查询参考价源，第一个命中的为准
type Reference struct {
	sources []port.ReferencePriceSource
}

func NewReference(sources ...port.ReferencePriceSource) *Reference {
	// nil sources are allowed; filter in constructor for safety
	out := make([]port.ReferencePriceSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Reference{sources: out}
}

func (r *Reference) Name() string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

func (r *Reference) Len() int { return len(r.sources) }

func (r *Reference) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	var lastErr error
	for _, s := range r.sources {
		m, err := s.MarketPrice(ctx, base, quote)
		if err == nil && m.Valid() {
			return m, nil
		}
		if err != nil && !errors.Is(err, domain.ErrPriceUnavailable) {
			log.Warn().Err(err).Str("source", s.Name()).Str("base", base).Str("quote", quote).Msg("reference source failed")
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s%s: %w (last error: %v)", base, quote, domain.ErrPriceUnavailable, lastErr)
	}
	return nil, fmt.Errorf("%s%s: %w", base, quote, domain.ErrPriceUnavailable)
}

// Mirror 同步写入多个 BookMirror，返回第一个错误
type Mirror struct {
	mirrors []port.BookMirror
}

func NewMirror(mirrors ...port.BookMirror) *Mirror {
	out := make([]port.BookMirror, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			out = append(out, m)
		}
	}
	return &Mirror{mirrors: out}
}

func (m *Mirror) Len() int { return len(m.mirrors) }

func (m *Mirror) UpsertTickers(ctx context.Context, tickers map[string]domain.Ticker) error {
	var firstErr error
	for _, mm := range m.mirrors {
		if err := mm.UpsertTickers(ctx, tickers); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Mirror) PublishHighLow(ctx context.Context, name string, snap domain.HighLowSnapshot) error {
	var firstErr error
	for _, mm := range m.mirrors {
		if err := mm.PublishHighLow(ctx, name, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ port.ReferencePriceSource = (*Reference)(nil)
	_ port.BookMirror           = (*Mirror)(nil)
)
