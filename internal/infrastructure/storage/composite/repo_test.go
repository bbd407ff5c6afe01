package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"xprice/internal/domain"
)

type stubSource struct {
	name  string
	price string
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.price == "" {
		return nil, domain.ErrPriceUnavailable
	}
	return &domain.MarketPrice{Symbol: base + quote, Price: decimal.RequireFromString(s.price)}, nil
}

func TestReferenceFirstHitWins(t *testing.T) {
	miss := &stubSource{name: "redis"}
	hit := &stubSource{name: "sqlite", price: "1400"}
	never := &stubSource{name: "http", price: "1"}
	r := NewReference(miss, nil, hit, never)

	m, err := r.MarketPrice(context.Background(), "NAO", "VNDC")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Price.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("expected 1400, got %s", m.Price)
	}
	if never.calls != 0 {
		t.Error("sources after the first hit must not be queried")
	}
	if r.Name() != "composite(redis,sqlite,http)" {
		t.Errorf("unexpected name %s", r.Name())
	}
}

func TestReferenceSkipsFailingSource(t *testing.T) {
	broken := &stubSource{name: "redis", err: errors.New("connection refused")}
	zero := &stubSource{name: "sqlite", price: "0"}
	hit := &stubSource{name: "http", price: "360"}

	m, err := NewReference(broken, zero, hit).MarketPrice(context.Background(), "NAMI", "VNDC")
	if err != nil || !m.Price.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("expected 360, got %+v err=%v", m, err)
	}
}

func TestReferenceAllMiss(t *testing.T) {
	r := NewReference(&stubSource{name: "a"}, &stubSource{name: "b", err: errors.New("timeout")})

	_, err := r.MarketPrice(context.Background(), "NAO", "VNDC")
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
	if _, err := NewReference().MarketPrice(context.Background(), "NAO", "VNDC"); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("empty chain: expected ErrPriceUnavailable, got %v", err)
	}
}

type stubMirror struct {
	upserts int
	err     error
}

func (m *stubMirror) UpsertTickers(ctx context.Context, tickers map[string]domain.Ticker) error {
	m.upserts++
	return m.err
}

func (m *stubMirror) PublishHighLow(ctx context.Context, name string, snap domain.HighLowSnapshot) error {
	return m.err
}

func TestMirrorFanOutFirstError(t *testing.T) {
	first := &stubMirror{err: errors.New("first")}
	second := &stubMirror{err: errors.New("second")}
	m := NewMirror(first, nil, second)

	err := m.UpsertTickers(context.Background(), map[string]domain.Ticker{})
	if err == nil || err.Error() != "first" {
		t.Errorf("expected first error, got %v", err)
	}
	if first.upserts != 1 || second.upserts != 1 {
		t.Error("every mirror must be written")
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 mirrors, got %d", m.Len())
	}
}
