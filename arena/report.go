package arena

import (
	"fmt"
	"sort"
	"time"

	"github.com/Drix10/hypothesis-arena/analytics"
)

// Standing is one row of the arena leaderboard.
type Standing struct {
	Rank   int              `json:"rank"`
	Report analytics.Report `json:"report"`
}

// Standings ranks every agent by total return, best first. Ties break by
// agent id so the order is stable.
func (o *Orchestrator) Standings(now time.Time) []Standing {
	agents := o.Ledger.Agents()
	out := make([]Standing, 0, len(agents))
	for _, p := range agents {
		out = append(out, Standing{Report: analytics.BuildReport(p, now)})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Report, out[j].Report
		if a.TotalReturnPct != b.TotalReturnPct {
			return a.TotalReturnPct > b.TotalReturnPct
		}
		return a.AgentID < b.AgentID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// AgentReport builds the full analytics report for one agent.
func (o *Orchestrator) AgentReport(agentID string, now time.Time) (analytics.Report, error) {
	p, err := o.Ledger.Agent(agentID)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("report for %s: %w", agentID, err)
	}
	return analytics.BuildReport(p, now), nil
}
