package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Book is the authoritative symbol -> ticker store.
// Writers replace a whole Ticker at once; readers always get copies.
type Book struct {
	mu      sync.RWMutex
	tickers map[string]Ticker
	assets  *Assets
}

// NewBook creates an empty book validating symbols against assets.
func NewBook(assets *Assets) *Book {
	if assets == nil {
		assets = DefaultAssets()
	}
	return &Book{
		tickers: make(map[string]Ticker),
		assets:  assets,
	}
}

// Assets returns the asset rules the book validates with.
func (b *Book) Assets() *Assets { return b.assets }

// Put replaces the ticker of t.Symbol.
func (b *Book) Put(t Ticker) error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if !b.assets.ValidSymbol(t.Symbol) {
		return fmt.Errorf("%w: cannot store %q", ErrInvalidQuoteAsset, t.Symbol)
	}

	b.mu.Lock()
	b.tickers[t.Symbol] = t
	b.mu.Unlock()
	return nil
}

// Get returns the ticker for a symbol.
func (b *Book) Get(symbol string) (Ticker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tickers[symbol]
	return t, ok
}

// Snapshot returns a copy of the whole book.
func (b *Book) Snapshot() map[string]Ticker {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := make(map[string]Ticker, len(b.tickers))
	for sym, t := range b.tickers {
		snap[sym] = t
	}
	return snap
}

// Symbols returns the stored symbols in lexical order.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.tickers))
	for sym := range b.tickers {
		out = append(out, sym)
	}
	b.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of stored symbols.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tickers)
}
