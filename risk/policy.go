// Package risk sizes trades and enforces portfolio limits. It never mutates
// a portfolio; it only inspects one and renders a Decision the ledger acts
// on.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the sizing limits for one agent. Percentages are expressed
// as numbers on a 0..100 scale, so 5.5 means 5.5%.
type Policy struct {
	// MinTradeValue is the smallest dollar amount worth opening.
	MinTradeValue decimal.Decimal `yaml:"min_trade_value" json:"min_trade_value"`
	// MaxPositionPct caps a single position's cost basis as a share of
	// total portfolio value.
	MaxPositionPct float64 `yaml:"max_position_pct" json:"max_position_pct"`
	// MaxDeployedPct caps the summed cost basis of all open positions.
	MaxDeployedPct float64 `yaml:"max_deployed_pct" json:"max_deployed_pct"`
	// CashReservePct is the slice of total value that must stay in cash.
	CashReservePct float64 `yaml:"cash_reserve_pct" json:"cash_reserve_pct"`
	// MaxOpenPositions caps the number of distinct tickers held at once.
	MaxOpenPositions int `yaml:"max_open_positions" json:"max_open_positions"`
}

// DefaultPolicy returns conservative limits suitable for a fresh agent.
func DefaultPolicy() Policy {
	return Policy{
		MinTradeValue:    decimal.NewFromInt(500),
		MaxPositionPct:   20,
		MaxDeployedPct:   80,
		CashReservePct:   10,
		MaxOpenPositions: 10,
	}
}

// Validate rejects policies that cannot produce a sane sizing decision.
func (p Policy) Validate() error {
	if !p.MinTradeValue.IsPositive() {
		return fmt.Errorf("min_trade_value must be positive, got %s", p.MinTradeValue)
	}
	if p.MaxPositionPct <= 0 || p.MaxPositionPct > 100 {
		return fmt.Errorf("max_position_pct must be in (0, 100], got %v", p.MaxPositionPct)
	}
	if p.MaxDeployedPct <= 0 || p.MaxDeployedPct > 100 {
		return fmt.Errorf("max_deployed_pct must be in (0, 100], got %v", p.MaxDeployedPct)
	}
	if p.MaxPositionPct > p.MaxDeployedPct {
		return fmt.Errorf("max_position_pct %v exceeds max_deployed_pct %v", p.MaxPositionPct, p.MaxDeployedPct)
	}
	if p.CashReservePct < 0 || p.CashReservePct >= 100 {
		return fmt.Errorf("cash_reserve_pct must be in [0, 100), got %v", p.CashReservePct)
	}
	if p.MaxOpenPositions < 1 {
		return fmt.Errorf("max_open_positions must be at least 1, got %d", p.MaxOpenPositions)
	}
	return nil
}

// pctOf returns pct percent of total.
func pctOf(total decimal.Decimal, pct float64) decimal.Decimal {
	return total.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
}
