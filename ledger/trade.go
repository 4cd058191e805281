package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/internal/id"
	"github.com/Drix10/hypothesis-arena/portfolio"
	"github.com/Drix10/hypothesis-arena/risk"
)

const (
	// duplicateWindow and duplicateDepth define the idempotence guard: an
	// identical fill within the window of any of the last few trades is
	// treated as a replayed submission and dropped silently.
	duplicateWindow = 5 * time.Second
	duplicateDepth  = 10
)

// TradeRequest is a fully sized execution request.
type TradeRequest struct {
	Ticker         string
	Side           portfolio.Side
	Shares         int64
	Price          decimal.Decimal
	Confidence     float64
	Recommendation string
	ThesisID       string
}

// ExecuteTrade validates and applies one fill to the agent's portfolio.
// Every check runs before the first mutation, so a rejected trade leaves
// the portfolio untouched. A duplicate submission returns (nil, nil).
func (l *Ledger) ExecuteTrade(agentID string, req TradeRequest) (*portfolio.Trade, error) {
	var executed *portfolio.Trade

	err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		now := l.now().UTC()

		if req.Shares <= 0 {
			return portfolio.Errorf(portfolio.CodeInvalidShares, "share count %d is not positive", req.Shares)
		}
		if !req.Price.IsPositive() {
			return portfolio.Errorf(portfolio.CodeInvalidPrice, "price %s is not positive", req.Price)
		}

		switch p.Status {
		case portfolio.StatusLiquidated:
			return fmt.Errorf("agent %s is liquidated", agentID)
		case portfolio.StatusPaused:
			// a paused agent may still reduce exposure
			if req.Side == portfolio.SideBuy {
				return fmt.Errorf("agent %s is paused, buys blocked", agentID)
			}
		}

		if l.enforceHours && !l.hours.IsOpen(now) {
			return portfolio.Errorf(portfolio.CodeMarketClosed, "market closed at %s", now.Format(time.RFC3339))
		}

		if l.isDuplicate(p, req, now) {
			l.log.Debug("duplicate trade dropped",
				"agent", agentID, "ticker", req.Ticker, "side", req.Side, "shares", req.Shares)
			return nil
		}

		var (
			tr  portfolio.Trade
			err error
		)
		switch req.Side {
		case portfolio.SideBuy:
			tr, err = l.applyBuyLocked(p, req, now)
		case portfolio.SideSell:
			tr, err = l.applySellLocked(p, req, now)
		default:
			return portfolio.Errorf(portfolio.CodeInvalidShares, "unknown side %q", req.Side)
		}
		if err != nil {
			return err
		}

		p.Trades = append(p.Trades, tr)
		p.RecomputeTotals()
		prev, changed := p.UpdateRiskState(l.pausePct, l.liquidatePct)
		l.trimHistory(p)
		p.UpdatedAt = now

		l.persist(p)
		if l.trades != nil {
			if logErr := l.trades.Append(agentID, tr); logErr != nil {
				l.log.Warn("trade log append failed", "agent", agentID, "err", logErr)
			}
		}
		l.agg.record(tr)
		l.persistAggregates()

		l.log.Info("trade executed",
			"agent", agentID,
			"ticker", tr.Ticker,
			"side", tr.Side,
			"shares", tr.Shares,
			"price", tr.Price.String(),
			"cash", p.CurrentCash.String())
		if changed {
			l.log.Warn("agent status changed",
				"agent", agentID, "from", prev, "to", p.Status,
				"drawdown_pct", p.CurrentDrawdownPct)
		}

		executed = &tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if executed == nil {
		return nil, nil
	}
	out := *executed
	return &out, nil
}

// applyBuyLocked validates then applies a buy. Cost basis merges by
// weighted average when the ticker is already held.
func (l *Ledger) applyBuyLocked(p *portfolio.Portfolio, req TradeRequest, now time.Time) (portfolio.Trade, error) {
	required := req.Price.Mul(decimal.NewFromInt(req.Shares))
	if required.GreaterThan(p.CurrentCash) {
		return portfolio.Trade{}, portfolio.Errorf(portfolio.CodeInsufficientCash,
			"buy needs %s, cash is %s", required.StringFixed(2), p.CurrentCash.StringFixed(2))
	}
	pos := p.FindPosition(req.Ticker)
	if pos == nil && len(p.Positions) >= l.policy.MaxOpenPositions {
		return portfolio.Trade{}, portfolio.Errorf(portfolio.CodePositionLimit,
			"%d open positions at the cap of %d", len(p.Positions), l.policy.MaxOpenPositions)
	}

	p.CurrentCash = p.CurrentCash.Sub(required)
	if pos == nil {
		pos = &portfolio.Position{
			Ticker:         req.Ticker,
			Shares:         req.Shares,
			AvgCostBasis:   req.Price,
			TotalCostBasis: required,
			OpenedAt:       now,
		}
		p.Positions = append(p.Positions, pos)
	} else {
		pos.Shares += req.Shares
		pos.TotalCostBasis = pos.TotalCostBasis.Add(required)
		pos.AvgCostBasis = pos.TotalCostBasis.Div(decimal.NewFromInt(pos.Shares))
	}
	pos.Mark(req.Price)

	return portfolio.Trade{
		ID:             id.New(),
		Ticker:         req.Ticker,
		Side:           portfolio.SideBuy,
		Shares:         req.Shares,
		Price:          req.Price,
		TotalValue:     required,
		ExecutedAt:     now,
		Confidence:     req.Confidence,
		Recommendation: req.Recommendation,
		ThesisID:       req.ThesisID,
		Valid:          true,
		RealizedPnL:    decimal.Zero,
	}, nil
}

// applySellLocked validates then applies a sell. Realized P&L uses the
// position's average cost; the FIFO view in analytics is derived from the
// trade log instead.
func (l *Ledger) applySellLocked(p *portfolio.Portfolio, req TradeRequest, now time.Time) (portfolio.Trade, error) {
	pos := p.FindPosition(req.Ticker)
	if pos == nil {
		return portfolio.Trade{}, portfolio.Errorf(portfolio.CodePositionNotFound,
			"no open position in %s", req.Ticker)
	}
	if req.Shares > pos.Shares {
		return portfolio.Trade{}, portfolio.Errorf(portfolio.CodeInvalidShares,
			"sell %d but only %d held", req.Shares, pos.Shares)
	}

	proceeds := req.Price.Mul(decimal.NewFromInt(req.Shares))
	costRemoved := pos.TotalCostBasis.Mul(decimal.NewFromInt(req.Shares)).Div(decimal.NewFromInt(pos.Shares))
	realized := proceeds.Sub(costRemoved)

	p.CurrentCash = p.CurrentCash.Add(proceeds)
	pos.Shares -= req.Shares
	if pos.Shares == 0 {
		p.RemovePosition(req.Ticker)
	} else {
		pos.TotalCostBasis = pos.TotalCostBasis.Sub(costRemoved)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.Mark(req.Price)
	}
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	if realized.IsPositive() {
		p.Wins++
	} else {
		p.Losses++
	}

	return portfolio.Trade{
		ID:             id.New(),
		Ticker:         req.Ticker,
		Side:           portfolio.SideSell,
		Shares:         req.Shares,
		Price:          req.Price,
		TotalValue:     proceeds,
		ExecutedAt:     now,
		Confidence:     req.Confidence,
		Recommendation: req.Recommendation,
		ThesisID:       req.ThesisID,
		Valid:          true,
		RealizedPnL:    realized,
	}, nil
}

func (l *Ledger) isDuplicate(p *portfolio.Portfolio, req TradeRequest, now time.Time) bool {
	start := len(p.Trades) - duplicateDepth
	if start < 0 {
		start = 0
	}
	for _, t := range p.Trades[start:] {
		if t.Ticker == req.Ticker && t.Side == req.Side && t.Shares == req.Shares &&
			t.Price.Equal(req.Price) && now.Sub(t.ExecutedAt) <= duplicateWindow {
			return true
		}
	}
	return false
}

// ExecuteDecision sizes and executes a decision engine outcome using the
// current board quote. Skipped outcomes and duplicate fills return
// (nil, nil); sizing rejections come back as a TradeError carrying the
// first violated limit.
func (l *Ledger) ExecuteDecision(agentID string, out decision.Outcome) (*portfolio.Trade, error) {
	if out.Skipped || out.Action == decision.ActionHold {
		l.log.Debug("decision skipped", "agent", agentID, "ticker", out.Ticker, "reason", out.SkipReason)
		return nil, nil
	}

	quote, ok := l.board.Get(out.Ticker)
	if !ok {
		return nil, portfolio.Errorf(portfolio.CodeStalePrice, "no quote for %s", out.Ticker)
	}
	now := l.now().UTC()
	if l.validator.MaxAge > 0 && !quote.AsOf.IsZero() && now.Sub(quote.AsOf) > l.validator.MaxAge {
		err := portfolio.Errorf(portfolio.CodeStalePrice,
			"quote for %s is %s old", out.Ticker, now.Sub(quote.AsOf).Round(time.Second))
		l.logAgentError(agentID, portfolio.CodeStalePrice, err.Message)
		return nil, err
	}

	side := portfolio.SideBuy
	if out.Action == decision.ActionSell {
		side = portfolio.SideSell
	}

	// the engine sizes its own sells; everything else goes through policy
	shares := out.Shares
	if side == portfolio.SideBuy || shares == 0 {
		snapshot, err := l.Agent(agentID)
		if err != nil {
			return nil, err
		}
		sized := risk.Size(l.policy, risk.Intent{
			Ticker:     out.Ticker,
			Side:       side,
			Price:      quote.Price,
			Confidence: out.Confidence,
		}, snapshot)
		if !sized.Allowed {
			v := sized.Violations[0]
			l.log.Info("trade blocked by policy",
				"agent", agentID, "ticker", out.Ticker, "code", v.Code, "reason", v.Msg)
			return nil, portfolio.Errorf(v.Code, "%s", v.Msg)
		}
		shares = sized.Shares
	}

	// carry thesis provenance onto the fill; a hand-built outcome without a
	// recommendation falls back to the action itself
	rec := string(out.Recommendation)
	if rec == "" {
		rec = string(out.Action)
	}

	return l.ExecuteTrade(agentID, TradeRequest{
		Ticker:         out.Ticker,
		Side:           side,
		Shares:         shares,
		Price:          quote.Price,
		Confidence:     out.Confidence,
		Recommendation: rec,
		ThesisID:       out.ThesisID,
	})
}

// ViewFor assembles the decision engine's read-only view of one agent for
// a signal on the given ticker.
func (l *Ledger) ViewFor(agentID, ticker string) (decision.AgentView, error) {
	var view decision.AgentView
	err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		view.Status = string(p.Status)
		view.WinRate = p.WinRate()
		view.ClosedTrades = p.ClosedTrades()
		if pos := p.FindPosition(ticker); pos != nil {
			view.HeldShares = pos.Shares
		}
		return nil
	})
	return view, err
}

// logAgentError records an operational error on the agent under its lock.
func (l *Ledger) logAgentError(agentID string, code portfolio.ErrorCode, msg string) {
	err := l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		p.LogError(code, msg, portfolio.DefaultRecoverable(code), l.now().UTC(), l.maxErrEntries)
		l.persist(p)
		return nil
	})
	if err != nil {
		l.log.Warn("could not record agent error", "agent", agentID, "err", err)
	}
}
