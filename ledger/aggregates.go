package ledger

import (
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/journal"
	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Aggregates are system-wide counters across every agent, maintained
// incrementally as trades execute.
type Aggregates struct {
	TotalTrades    int64            `json:"total_trades"`
	TotalBuys      int64            `json:"total_buys"`
	TotalSells     int64            `json:"total_sells"`
	TotalVolume    decimal.Decimal  `json:"total_volume"` // sum of trade notional
	TradesByTicker map[string]int64 `json:"trades_by_ticker"`
}

type aggregates struct {
	mu sync.Mutex
	a  Aggregates
}

func newAggregates() *aggregates {
	return &aggregates{a: Aggregates{
		TotalVolume:    decimal.Zero,
		TradesByTicker: make(map[string]int64),
	}}
}

func (g *aggregates) record(t portfolio.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.a.TotalTrades++
	if t.Side == portfolio.SideBuy {
		g.a.TotalBuys++
	} else {
		g.a.TotalSells++
	}
	g.a.TotalVolume = g.a.TotalVolume.Add(t.TotalValue)
	g.a.TradesByTicker[t.Ticker]++
}

// absorb rebuilds counters from a restored portfolio's history.
func (g *aggregates) absorb(p *portfolio.Portfolio) {
	for _, t := range p.Trades {
		g.record(t)
	}
}

func (g *aggregates) snapshot() Aggregates {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.a
	out.TradesByTicker = make(map[string]int64, len(g.a.TradesByTicker))
	for k, v := range g.a.TradesByTicker {
		out.TradesByTicker[k] = v
	}
	return out
}

// replace swaps in restored counters wholesale.
func (g *aggregates) replace(a Aggregates) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if a.TradesByTicker == nil {
		a.TradesByTicker = make(map[string]int64)
	}
	g.a = a
}

// Aggregates returns a copy of the system-wide counters.
func (l *Ledger) Aggregates() Aggregates {
	return l.agg.snapshot()
}

// persistAggregates mirrors the counters into store metadata so they
// survive trade-history trimming.
func (l *Ledger) persistAggregates() {
	if l.store == nil {
		return
	}
	raw, err := json.Marshal(l.agg.snapshot())
	if err != nil {
		l.log.Warn("aggregates marshal failed", "err", err)
		return
	}
	if err := l.store.PutMeta(journal.MetaAggregates, string(raw)); err != nil {
		l.log.Warn("aggregates persist failed", "err", err)
	}
}

// restoreAggregates adopts stored counters, reporting whether any existed.
func (l *Ledger) restoreAggregates() bool {
	if l.store == nil {
		return false
	}
	raw, err := l.store.GetMeta(journal.MetaAggregates)
	if err != nil || raw == "" {
		return false
	}
	var a Aggregates
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		l.log.Warn("stored aggregates unreadable, rebuilding from history", "err", err)
		return false
	}
	l.agg.replace(a)
	return true
}
