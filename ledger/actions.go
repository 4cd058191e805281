package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/internal/id"
	"github.com/Drix10/hypothesis-arena/portfolio"
)

// ApplyCorporateAction adjusts a held position for a split or credits a
// dividend. Re-applying an action id that already went through is a no-op,
// so upstream feeds may deliver the same event more than once.
func (l *Ledger) ApplyCorporateAction(agentID string, action portfolio.CorporateAction) error {
	return l.withAgent(agentID, func(p *portfolio.Portfolio) error {
		now := l.now().UTC()
		if action.ID == "" {
			action.ID = id.New()
		}
		for _, a := range p.Actions {
			if a.ID == action.ID && a.Applied {
				return nil
			}
		}

		pos := p.FindPosition(action.Ticker)
		if pos == nil {
			return portfolio.Errorf(portfolio.CodePositionNotFound,
				"no open position in %s for %s", action.Ticker, action.Kind)
		}

		switch action.Kind {
		case portfolio.ActionSplit:
			if err := applySplit(p, pos, action.Ratio); err != nil {
				return err
			}
		case portfolio.ActionDividend:
			if action.Amount.IsNegative() {
				return portfolio.Errorf(portfolio.CodeCorporateAction,
					"dividend amount %s is negative", action.Amount)
			}
			p.CurrentCash = p.CurrentCash.Add(action.Amount.Mul(decimal.NewFromInt(pos.Shares)))
		default:
			return portfolio.Errorf(portfolio.CodeCorporateAction, "unknown action kind %q", action.Kind)
		}

		if action.ExecutedAt.IsZero() {
			action.ExecutedAt = now
		}
		action.Applied = true
		p.Actions = append(p.Actions, action)

		p.RecomputeTotals()
		p.UpdateRiskState(l.pausePct, l.liquidatePct)
		p.UpdatedAt = now
		l.persist(p)

		l.log.Info("corporate action applied",
			"agent", agentID, "ticker", action.Ticker, "kind", action.Kind, "id", action.ID)
		return nil
	})
}

// applySplit rescales share count, basis and marks by ratio. A fractional
// share left over by a reverse split is paid out as cash in lieu at the
// post-split price, with the matching slice of cost basis realized.
func applySplit(p *portfolio.Portfolio, pos *portfolio.Position, ratio decimal.Decimal) error {
	if !ratio.IsPositive() {
		return portfolio.Errorf(portfolio.CodeCorporateAction, "split ratio %s is not positive", ratio)
	}

	exact := decimal.NewFromInt(pos.Shares).Mul(ratio)
	newShares := exact.IntPart()
	if newShares <= 0 {
		return portfolio.Errorf(portfolio.CodeCorporateAction,
			"split by %s would leave %s no whole shares", ratio, pos.Ticker)
	}

	newPrice := pos.CurrentPrice.Div(ratio)
	if frac := exact.Sub(decimal.NewFromInt(newShares)); frac.IsPositive() {
		cashInLieu := frac.Mul(newPrice)
		costRemoved := pos.TotalCostBasis.Mul(frac).Div(exact)
		p.CurrentCash = p.CurrentCash.Add(cashInLieu)
		p.RealizedPnL = p.RealizedPnL.Add(cashInLieu.Sub(costRemoved))
		pos.TotalCostBasis = pos.TotalCostBasis.Sub(costRemoved)
	}

	pos.Shares = newShares
	pos.AvgCostBasis = pos.TotalCostBasis.Div(decimal.NewFromInt(newShares))
	pos.HighWaterMark = pos.HighWaterMark.Div(ratio)
	pos.Mark(newPrice)
	return nil
}
