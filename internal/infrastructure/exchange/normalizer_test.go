package exchange

import (
	"errors"
	"testing"

	"xprice/internal/domain"
)

const ticker24h = `{"e":"24hrTicker","E":1694591254832,"s":"BNBUSDT","p":"0.0015","P":"250.00",
"w":"0.0018","x":"0.0009","c":"215.25","Q":"10","b":"215.2","B":"10","a":"215.3","A":"100",
"o":"0.0010","h":"0.0025","l":"0.0010","v":"10000","q":"18","O":0,"C":86400000,"F":0,"L":18150,"n":18151}`

func TestNormalizeSingleTicker(t *testing.T) {
	n := NewTickerNormalizer(nil)

	ticks, err := n.Normalize([]byte(ticker24h))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	got := ticks[0]
	if got.Symbol != "BNBUSDT" || got.Base != "BNB" || got.Quote != "USDT" {
		t.Errorf("unexpected tick %+v", got)
	}
	if got.LastPrice.String() != "215.25" {
		t.Errorf("expected last 215.25, got %s", got.LastPrice)
	}
}

func TestNormalizeCombinedAndArray(t *testing.T) {
	n := NewTickerNormalizer(nil)

	ticks, err := n.Normalize([]byte(`{"stream":"btcvndc@ticker","data":{"e":"24hrTicker","s":"btcvndc","c":"1000000000"}}`))
	if err != nil || len(ticks) != 1 || ticks[0].Symbol != "BTCVNDC" {
		t.Fatalf("combined: ticks=%+v err=%v", ticks, err)
	}

	ticks, err = n.Normalize([]byte(`[{"s":"ETHUSDT","c":"3000"},{"s":"ETHEUR","c":"2800"},{"s":"XRPVNST","c":"0.5"}]`))
	if !errors.Is(err, domain.ErrInvalidQuoteAsset) {
		t.Errorf("expected ErrInvalidQuoteAsset for ETHEUR, got %v", err)
	}
	if len(ticks) != 2 || ticks[1].Quote != "VNST" {
		t.Errorf("expected the two valid ticks, got %+v", ticks)
	}
}

func TestNormalizeErrors(t *testing.T) {
	n := NewTickerNormalizer(nil)

	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"broken json", `{"s":"BTCUSDT","c":`, domain.ErrMalformedPayload},
		{"bad price", `{"s":"BTCUSDT","c":"abc"}`, domain.ErrMalformedPayload},
		{"missing price", `{"s":"BTCUSDT"}`, domain.ErrMalformedPayload},
		{"negative price", `{"s":"BTCUSDT","c":"-1"}`, domain.ErrMalformedPayload},
		{"unsupported quote", `{"s":"BTCEUR","c":"1"}`, domain.ErrInvalidQuoteAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks, err := n.Normalize([]byte(tt.msg))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if len(ticks) != 0 {
				t.Errorf("expected no ticks, got %+v", ticks)
			}
		})
	}
}

func TestNormalizeIgnoresControlMessages(t *testing.T) {
	n := NewTickerNormalizer(nil)
	for _, msg := range []string{`{"result":null,"id":1}`, "  ", ""} {
		ticks, err := n.Normalize([]byte(msg))
		if err != nil || len(ticks) != 0 {
			t.Errorf("%q: ticks=%+v err=%v", msg, ticks, err)
		}
	}
}

func TestNormalizeAliases(t *testing.T) {
	assets := domain.NewAssets([]string{"USDT", "VNDC"}, map[string]string{"XBT": "BTC"})
	n := NewTickerNormalizer(assets)

	ticks, err := n.Normalize([]byte(`{"s":"XBTUSDT","c":"43000"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 1 || ticks[0].Symbol != "BTCUSDT" {
		t.Errorf("expected alias resolved to BTCUSDT, got %+v", ticks)
	}
}

func TestSymbolConverter(t *testing.T) {
	c := NewSymbolConverter(map[string]string{"XBTUSDT": "BTCUSDT"}, true)

	if got := c.ToExchange(" BTCUSDT "); got != "xbtusdt" {
		t.Errorf("expected xbtusdt, got %s", got)
	}
	if got := c.Render("{symbol}@ticker", "ethusdt"); got != "ethusdt@ticker" {
		t.Errorf("unexpected render %s", got)
	}
	upper := NewSymbolConverter(nil, false)
	if got := upper.ToExchange("btcvndc"); got != "BTCVNDC" {
		t.Errorf("expected BTCVNDC, got %s", got)
	}
}

func TestBuildQueryURL(t *testing.T) {
	got, err := BuildQueryURL("https://example.com/", "/api/v3/spot/market_watch", "symbol=BTCVNDC")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/api/v3/spot/market_watch?symbol=BTCVNDC" {
		t.Errorf("unexpected url %s", got)
	}
	if _, err := BuildQueryURL("  ", "/x", ""); err == nil {
		t.Error("expected error for empty base")
	}
}
