package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/arena"
	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/ledger"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Result totals what a scenario run did to the ledger.
type Result struct {
	Cycles         int `json:"cycles"`
	QuotesApplied  int `json:"quotes_applied"`
	TradesExecuted int `json:"trades_executed"`
	SignalsSkipped int `json:"signals_skipped"`
	TradesBlocked  int `json:"trades_blocked"`
	ActionsApplied int `json:"actions_applied"`
	SnapshotsTaken int `json:"snapshots_taken"`
}

func (r *Result) add(rep arena.CycleReport) {
	r.Cycles++
	r.QuotesApplied += rep.QuotesApplied
	r.TradesExecuted += rep.TradesExecuted
	r.SignalsSkipped += rep.SignalsSkipped
	r.TradesBlocked += rep.TradesBlocked
	r.ActionsApplied += rep.ActionsApplied
	r.SnapshotsTaken += rep.SnapshotsTaken
}

// Runner feeds a scenario through the arena cycle by cycle. Each cycle pins
// the ledger clock to its timestamp, so duplicate windows, market hours and
// snapshot cadence all follow scenario time rather than wall time.
type Runner struct {
	Ledger *ledger.Ledger
	Log    *slog.Logger
}

// Run executes every cycle in order. Policy rejections and skipped signals
// are counted inside the cycle, never fatal; structural failures abort with
// the cycle index in the error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	orch := &arena.Orchestrator{Ledger: r.Ledger, Log: log}

	res := &Result{}
	for i, cycle := range sc.Cycles {
		rep, err := orch.RunCycle(ctx, toInput(cycle))
		if err != nil {
			return res, fmt.Errorf("cycle %d: %w", i, err)
		}
		res.add(rep)
	}

	log.Info("scenario finished",
		"name", sc.Name,
		"cycles", res.Cycles,
		"trades", res.TradesExecuted,
		"blocked", res.TradesBlocked,
		"skipped", res.SignalsSkipped)
	return res, nil
}

// toInput converts one scenario cycle into the arena's wire form.
func toInput(c Cycle) arena.Input {
	in := arena.Input{At: c.At}

	for ticker, price := range c.Prices {
		in.Quotes = append(in.Quotes, market.Quote{
			Ticker: ticker,
			Price:  decimal.NewFromFloat(price),
			AsOf:   c.At,
		})
	}

	for _, sig := range c.Signals {
		s := arena.Signal{
			AgentID: sig.Agent,
			Thesis: decision.Signal{
				Ticker:         sig.Ticker,
				Recommendation: decision.Recommendation(sig.Recommendation),
				Confidence:     sig.Confidence,
				ThesisID:       sig.ThesisID,
			},
		}
		if sig.Debate != nil {
			s.Debate = decision.Debate{
				Winner: decision.Stance(sig.Debate.Winner),
				Margin: sig.Debate.Margin,
			}
		}
		in.Signals = append(in.Signals, s)
	}

	for _, act := range c.Actions {
		kind := portfolio.ActionSplit
		if act.Kind == "dividend" {
			kind = portfolio.ActionDividend
		}
		in.Actions = append(in.Actions, arena.Action{
			AgentID: act.Agent,
			Event: portfolio.CorporateAction{
				ID:     act.ID,
				Ticker: act.Ticker,
				Kind:   kind,
				Ratio:  decimal.NewFromFloat(act.Ratio),
				Amount: decimal.NewFromFloat(act.Amount),
			},
		})
	}
	return in
}
