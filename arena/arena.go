// Package arena orchestrates one decision cycle across every agent: publish
// quotes, evaluate each signal through the decision engine, execute what
// survives, apply corporate actions, then snapshot performance. A failing
// agent is reported and skipped; the cycle always finishes for the rest.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/ledger"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Signal pairs a thesis and its debate outcome with a target agent. An
// empty AgentID broadcasts to every registered agent.
type Signal struct {
	AgentID string          `json:"agent_id,omitempty"`
	Thesis  decision.Signal `json:"thesis"`
	Debate  decision.Debate `json:"debate"`
}

// Action targets a corporate action event. An empty AgentID applies it to
// every agent holding the ticker.
type Action struct {
	AgentID string                    `json:"agent_id,omitempty"`
	Event   portfolio.CorporateAction `json:"event"`
}

// Input is everything one cycle consumes. A zero At leaves the ledger
// clock alone.
type Input struct {
	At      time.Time      `json:"at"`
	Quotes  []market.Quote `json:"quotes,omitempty"`
	Signals []Signal       `json:"signals,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
}

// CycleReport totals what one cycle did.
type CycleReport struct {
	At             time.Time `json:"at"`
	QuotesApplied  int       `json:"quotes_applied"`
	TradesExecuted int       `json:"trades_executed"`
	SignalsSkipped int       `json:"signals_skipped"`
	TradesBlocked  int       `json:"trades_blocked"`
	ActionsApplied int       `json:"actions_applied"`
	SnapshotsTaken int       `json:"snapshots_taken"`
}

// Orchestrator runs cycles against one ledger.
type Orchestrator struct {
	Ledger *ledger.Ledger
	Log    *slog.Logger
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// RunCycle executes one full cycle in order: quotes, signals, actions,
// snapshots. Policy rejections and skipped signals are counted, not
// returned; only structural failures (unknown agent, poisoned store,
// cancelled context) produce an error.
func (o *Orchestrator) RunCycle(ctx context.Context, in Input) (CycleReport, error) {
	rep := CycleReport{At: in.At}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if !in.At.IsZero() {
		at := in.At
		o.Ledger.SetClock(func() time.Time { return at })
	}

	if len(in.Quotes) > 0 {
		n, err := o.Ledger.RefreshPrices(in.Quotes)
		if err != nil {
			return rep, fmt.Errorf("refresh prices: %w", err)
		}
		rep.QuotesApplied = n
	}

	for _, sig := range in.Signals {
		if err := o.runSignal(sig, &rep); err != nil {
			return rep, err
		}
	}

	for _, act := range in.Actions {
		if err := o.runAction(act, &rep); err != nil {
			return rep, err
		}
	}

	n, err := o.Ledger.TakeSnapshots()
	if err != nil {
		return rep, fmt.Errorf("snapshots: %w", err)
	}
	rep.SnapshotsTaken = n
	return rep, nil
}

func (o *Orchestrator) runSignal(sig Signal, rep *CycleReport) error {
	agents := []string{sig.AgentID}
	if sig.AgentID == "" {
		agents = o.Ledger.AgentIDs()
	}

	for _, agentID := range agents {
		view, err := o.Ledger.ViewFor(agentID, sig.Thesis.Ticker)
		if err != nil {
			return fmt.Errorf("signal for %s: %w", agentID, err)
		}
		out := decision.Evaluate(o.Ledger.Thresholds(), sig.Thesis, sig.Debate, view)

		tr, err := o.Ledger.ExecuteDecision(agentID, out)
		switch {
		case err == nil && tr != nil:
			rep.TradesExecuted++
		case err == nil:
			rep.SignalsSkipped++
			o.log().Debug("signal skipped",
				"agent", agentID, "ticker", sig.Thesis.Ticker, "reason", out.SkipReason)
		default:
			var te *portfolio.TradeError
			if !errors.As(err, &te) {
				return fmt.Errorf("signal for %s: %w", agentID, err)
			}
			rep.TradesBlocked++
			o.log().Info("signal blocked",
				"agent", agentID, "ticker", sig.Thesis.Ticker, "code", te.Code, "reason", te.Message)
		}
	}
	return nil
}

func (o *Orchestrator) runAction(act Action, rep *CycleReport) error {
	agents := []string{act.AgentID}
	if act.AgentID == "" {
		agents = o.Ledger.AgentIDs()
	}

	for _, agentID := range agents {
		err := o.Ledger.ApplyCorporateAction(agentID, act.Event)
		switch {
		case err == nil:
			rep.ActionsApplied++
		case act.AgentID == "" && portfolio.IsCode(err, portfolio.CodePositionNotFound):
			// a broadcast action simply misses agents without the ticker
		default:
			return fmt.Errorf("%s on %s for %s: %w", act.Event.Kind, act.Event.Ticker, agentID, err)
		}
	}
	return nil
}
