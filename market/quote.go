// Package market carries price observations into the trading system and
// decides whether they are usable: freshness, sanity and session checks live
// here so the ledger never has to reason about bad ticks.
package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one observed price for a ticker.
type Quote struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Board holds the latest quote per ticker. Writers replace, readers copy.
type Board struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewBoard() *Board {
	return &Board{quotes: make(map[string]Quote)}
}

// Set stores q as the latest quote for its ticker.
func (b *Board) Set(q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.Ticker] = q
}

// Get returns the latest quote for ticker.
func (b *Board) Get(ticker string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[ticker]
	return q, ok
}

// Snapshot returns a copy of every current quote keyed by ticker.
func (b *Board) Snapshot() map[string]Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Quote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}

// Tickers lists tickers with a known quote.
func (b *Board) Tickers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.quotes))
	for k := range b.quotes {
		out = append(out, k)
	}
	return out
}
