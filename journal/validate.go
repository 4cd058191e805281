package journal

import (
	"time"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// clockSkew is how far ahead of the wall clock a stored timestamp may sit
// before it counts as corrupt.
const clockSkew = time.Hour

// Validate checks a loaded or imported portfolio for structural damage
// before any code trusts it. Every failure carries the data_corruption
// code; there is no partial acceptance.
func Validate(p *portfolio.Portfolio) error {
	if p.AgentID == "" {
		return corrupt("portfolio has no agent id")
	}
	if !portfolio.ValidStatus(p.Status) {
		return corrupt("agent %s has unknown status %q", p.AgentID, p.Status)
	}
	if !p.InitialCash.IsPositive() {
		return corrupt("agent %s initial cash %s is not positive", p.AgentID, p.InitialCash)
	}
	if p.CurrentCash.IsNegative() {
		return corrupt("agent %s cash %s is negative", p.AgentID, p.CurrentCash)
	}

	// only CreatedAt is always wall-clock; trade and update times may be
	// pinned to a scenario's timeline
	if p.CreatedAt.After(time.Now().Add(clockSkew)) {
		return corrupt("agent %s was created in the future", p.AgentID)
	}

	seen := make(map[string]bool, len(p.Positions))
	for _, pos := range p.Positions {
		if pos.Ticker == "" {
			return corrupt("agent %s has a position without a ticker", p.AgentID)
		}
		if seen[pos.Ticker] {
			return corrupt("agent %s holds %s twice", p.AgentID, pos.Ticker)
		}
		seen[pos.Ticker] = true
		if pos.Shares <= 0 {
			return corrupt("agent %s position %s has %d shares", p.AgentID, pos.Ticker, pos.Shares)
		}
		if pos.TotalCostBasis.IsNegative() {
			return corrupt("agent %s position %s has negative cost basis %s", p.AgentID, pos.Ticker, pos.TotalCostBasis)
		}
	}

	ids := make(map[string]bool, len(p.Trades))
	for _, t := range p.Trades {
		if t.ID == "" {
			return corrupt("agent %s has a trade without an id", p.AgentID)
		}
		if ids[t.ID] {
			return corrupt("agent %s trade id %s repeats", p.AgentID, t.ID)
		}
		ids[t.ID] = true
		if t.Side != portfolio.SideBuy && t.Side != portfolio.SideSell {
			return corrupt("agent %s trade %s has unknown side %q", p.AgentID, t.ID, t.Side)
		}
		if t.Shares <= 0 {
			return corrupt("agent %s trade %s has %d shares", p.AgentID, t.ID, t.Shares)
		}
		if !t.Price.IsPositive() {
			return corrupt("agent %s trade %s has price %s", p.AgentID, t.ID, t.Price)
		}
	}

	for i := 1; i < len(p.Snapshots); i++ {
		if p.Snapshots[i].TakenAt.Before(p.Snapshots[i-1].TakenAt) {
			return corrupt("agent %s snapshots out of order at %d", p.AgentID, i)
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return portfolio.Errorf(portfolio.CodeDataCorruption, format, args...)
}
