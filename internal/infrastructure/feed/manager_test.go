package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"xprice/internal/domain"
	"xprice/internal/infrastructure/exchange"
)

func TestManagerIsolatesSymbols(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ethusdt 永远失败，btcusdt 正常推送
		if strings.Contains(r.URL.Path, "ethusdt") {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"BTCUSDT","c":"43000"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &bookSink{book: domain.NewBook(nil)}
	n := &recordingNotifier{}
	m := NewManager(testOptions(srv, 1), exchange.NewTickerNormalizer(nil), sink, n)
	m.Add("btcusdt", "ETHUSDT", "BTCUSDT", " ")

	if got := m.Symbols(); len(got) != 2 {
		t.Fatalf("expected 2 symbols, got %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	eth, _ := m.Connection("ETHUSDT")
	waitFor(t, func() bool { return eth.State() == StateExhausted })
	waitFor(t, func() bool {
		_, ok := sink.book.Get("BTCUSDT")
		return ok
	})

	if st := m.States()["BTCUSDT"]; st != StateConnected {
		t.Errorf("expected BTCUSDT connected, got %s", st)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrFeedExhausted) {
			t.Errorf("expected ETHUSDT exhaustion reported, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("manager did not stop")
	}
	if len(n.list()) != 1 {
		t.Errorf("expected one alert, got %v", n.list())
	}
}

func TestManagerWithoutSymbols(t *testing.T) {
	m := NewManager(Options{}, exchange.NewTickerNormalizer(nil), &bookSink{book: domain.NewBook(nil)}, nil)
	if err := m.Run(context.Background()); err == nil {
		t.Error("expected error without symbols")
	}
}

func TestStateString(t *testing.T) {
	if StateBackoff.String() != "backoff" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if !StateExhausted.Terminal() || StateConnected.Terminal() {
		t.Error("unexpected terminal states")
	}
}
