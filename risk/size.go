package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Intent is a proposed trade before sizing. Confidence is the decision
// engine's adjusted value on a 0..100 scale and drives how much of the
// allowed range a buy uses.
type Intent struct {
	Ticker     string
	Side       portfolio.Side
	Price      decimal.Decimal
	Confidence float64
}

// Violation is one limit the intent would break.
type Violation struct {
	Code portfolio.ErrorCode `json:"code"`
	Msg  string              `json:"msg"`
}

// Decision is the sizing verdict. Shares and RequiredCash are only
// meaningful when Allowed is true.
type Decision struct {
	Allowed      bool            `json:"allowed"`
	Shares       int64           `json:"shares"`
	TargetValue  decimal.Decimal `json:"target_value"`
	RequiredCash decimal.Decimal `json:"required_cash"`
	Violations   []Violation     `json:"violations,omitempty"`
}

func (d *Decision) violate(code portfolio.ErrorCode, format string, args ...any) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: fmt.Sprintf(format, args...)})
}

// Size renders a sizing decision for intent against the portfolio's current
// state. Buys scale between MinTradeValue and the single-position cap by
// confidence, then shrink to fit position, deployment and cash-reserve
// headroom. Sells always cover the full open position.
func Size(pol Policy, intent Intent, p *portfolio.Portfolio) Decision {
	d := Decision{}

	if !intent.Price.IsPositive() {
		d.violate(portfolio.CodeInvalidPrice, "price %s is not positive", intent.Price)
		return d
	}

	switch intent.Side {
	case portfolio.SideBuy:
		sizeBuy(pol, intent, p, &d)
	case portfolio.SideSell:
		sizeSell(intent, p, &d)
	default:
		d.violate(portfolio.CodeInvalidShares, "unknown side %q", intent.Side)
	}

	d.Allowed = len(d.Violations) == 0
	if !d.Allowed {
		d.Shares = 0
		d.RequiredCash = decimal.Zero
	}
	return d
}

func sizeBuy(pol Policy, intent Intent, p *portfolio.Portfolio, d *Decision) {
	total := p.TotalValue
	conf := intent.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 100 {
		conf = 100
	}

	existing := p.FindPosition(intent.Ticker)
	if existing == nil && len(p.Positions) >= pol.MaxOpenPositions {
		d.violate(portfolio.CodePositionLimit,
			"%d open positions at the cap of %d", len(p.Positions), pol.MaxOpenPositions)
		return
	}

	// confidence interpolates between the minimum trade and the
	// single-position ceiling
	maxPos := pctOf(total, pol.MaxPositionPct)
	span := maxPos.Sub(pol.MinTradeValue)
	target := pol.MinTradeValue
	if span.IsPositive() {
		target = target.Add(span.Mul(decimal.NewFromFloat(conf)).Div(decimal.NewFromInt(100)))
	}

	if existing != nil {
		headroom := maxPos.Sub(existing.TotalCostBasis)
		if !headroom.IsPositive() {
			d.violate(portfolio.CodePositionLimit,
				"%s already at the %.1f%% single-position cap", intent.Ticker, pol.MaxPositionPct)
			return
		}
		if target.GreaterThan(headroom) {
			target = headroom
		}
	}

	deployRoom := pctOf(total, pol.MaxDeployedPct).Sub(p.DeployedCost())
	if !deployRoom.IsPositive() {
		d.violate(portfolio.CodePositionLimit,
			"deployed capital at the %.1f%% cap", pol.MaxDeployedPct)
		return
	}
	if target.GreaterThan(deployRoom) {
		target = deployRoom
	}
	d.TargetValue = target

	shares := target.Div(intent.Price).IntPart()
	if shares <= 0 {
		d.violate(portfolio.CodeInvalidShares,
			"target %s buys zero shares at %s", target.StringFixed(2), intent.Price)
		return
	}

	required := intent.Price.Mul(decimal.NewFromInt(shares))
	available := p.CurrentCash.Sub(pctOf(total, pol.CashReservePct))
	if required.GreaterThan(available) {
		d.violate(portfolio.CodeInsufficientCash,
			"need %s but only %s is free after the %.1f%% reserve",
			required.StringFixed(2), available.StringFixed(2), pol.CashReservePct)
		return
	}

	d.Shares = shares
	d.RequiredCash = required
}

func sizeSell(intent Intent, p *portfolio.Portfolio, d *Decision) {
	pos := p.FindPosition(intent.Ticker)
	if pos == nil {
		d.violate(portfolio.CodePositionNotFound, "no open position in %s", intent.Ticker)
		return
	}
	d.Shares = pos.Shares
	d.TargetValue = intent.Price.Mul(decimal.NewFromInt(pos.Shares))
	d.RequiredCash = decimal.Zero
}
