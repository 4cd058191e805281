package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/analytics"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/portfolio"
)

// RefreshPrices screens incoming quotes, publishes the good ones to the
// board and revalues every portfolio against it. A rejected quote never
// replaces a known price; agents holding the ticker get an error entry and
// keep trading on the previous mark. Returns how many quotes were applied.
func (l *Ledger) RefreshPrices(quotes []market.Quote) (int, error) {
	now := l.now().UTC()
	applied := 0

	for _, q := range quotes {
		prev := decimal.Zero
		if old, ok := l.board.Get(q.Ticker); ok {
			prev = old.Price
		}

		warn, err := l.validator.Check(q, prev, now)
		if err != nil {
			l.log.Warn("quote rejected", "ticker", q.Ticker, "err", err)
			code, ok := portfolio.CodeOf(err)
			if !ok {
				code = portfolio.CodeUpstreamAPI
			}
			for _, agentID := range l.holdersOf(q.Ticker) {
				l.logAgentError(agentID, code, err.Error())
			}
			continue
		}
		if warn != "" {
			l.log.Warn("suspicious quote accepted", "ticker", q.Ticker, "detail", warn)
		}
		l.board.Set(q)
		applied++
	}

	if applied > 0 {
		l.revalueAll()
	}
	return applied, nil
}

// holdersOf lists agents with an open position in ticker.
func (l *Ledger) holdersOf(ticker string) []string {
	var out []string
	for _, agentID := range l.reg.ids() {
		p, ok := l.reg.get(agentID)
		if !ok {
			continue
		}
		// read of the positions slice races a concurrent mutation in
		// theory; the worst case is a missed error entry, so the scan
		// stays lock-free
		if p.FindPosition(ticker) != nil {
			out = append(out, agentID)
		}
	}
	return out
}

// revalueAll re-marks every held position from the board and updates each
// agent's drawdown state.
func (l *Ledger) revalueAll() {
	for _, agentID := range l.reg.ids() {
		err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
			l.revalueLocked(p)
			return nil
		})
		if err != nil {
			l.log.Warn("revalue skipped", "agent", agentID, "err", err)
		}
	}
}

func (l *Ledger) revalueLocked(p *portfolio.Portfolio) {
	changed := false
	for _, pos := range p.Positions {
		q, ok := l.board.Get(pos.Ticker)
		if !ok || !q.Price.IsPositive() {
			continue
		}
		if !pos.CurrentPrice.Equal(q.Price) {
			pos.Mark(q.Price)
			changed = true
		}
	}
	if !changed {
		return
	}

	p.RecomputeTotals()
	prev, moved := p.UpdateRiskState(l.pausePct, l.liquidatePct)
	p.UpdatedAt = l.now().UTC()
	l.persist(p)

	if moved {
		l.log.Warn("agent status changed on revaluation",
			"agent", p.AgentID, "from", prev, "to", p.Status,
			"drawdown_pct", p.CurrentDrawdownPct)
	}
}

// TakeSnapshots records a performance snapshot for every agent that is due
// one, refreshing the Sharpe ratio from the extended series. Returns how
// many snapshots were taken.
func (l *Ledger) TakeSnapshots() (int, error) {
	taken := 0
	for _, agentID := range l.reg.ids() {
		err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
			now := l.now().UTC()
			if !analytics.ShouldSnapshot(p.Snapshots, now) {
				return nil
			}
			p.Snapshots = append(p.Snapshots, analytics.BuildSnapshot(p, now))
			p.Sharpe = analytics.SharpeRatio(analytics.DailyReturns(p.Snapshots))
			l.trimHistory(p)
			p.UpdatedAt = now
			l.persist(p)
			taken++
			return nil
		})
		if err != nil {
			return taken, err
		}
	}
	return taken, nil
}
