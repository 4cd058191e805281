// Package portfolio holds the domain model for one paper-trading agent: its
// cash, open positions, immutable trade history, performance snapshots and
// lifecycle status. All mutation goes through the ledger; this package only
// defines state and the pure bookkeeping that keeps it consistent.
package portfolio

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusLiquidated Status = "liquidated"
)

// ValidStatus reports whether s is one of the three known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusPaused, StatusLiquidated:
		return true
	}
	return false
}

// Sharpe is an explicit "value or not enough data" pair. Valid is false until
// at least MinSharpeSamples daily returns exist, and callers must check it.
type Sharpe struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Position is one open holding. Shares is always > 0; a fully sold position
// is removed from the portfolio, never kept at zero.
type Position struct {
	Ticker              string          `json:"ticker"`
	Shares              int64           `json:"shares"`
	AvgCostBasis        decimal.Decimal `json:"avg_cost_basis"`
	TotalCostBasis      decimal.Decimal `json:"total_cost_basis"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketValue         decimal.Decimal `json:"market_value"`
	UnrealizedPnL       decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL         decimal.Decimal `json:"realized_pnl"` // cumulative, from partial sells
	HighWaterMark       decimal.Decimal `json:"high_water_mark"`
	DrawdownFromHighPct float64         `json:"drawdown_from_high_pct"`
	OpenedAt            time.Time       `json:"opened_at"`
}

// Mark revalues the position at price. The high-water mark only ratchets up.
func (pos *Position) Mark(price decimal.Decimal) {
	pos.CurrentPrice = price
	pos.MarketValue = price.Mul(decimal.NewFromInt(pos.Shares))
	pos.UnrealizedPnL = pos.MarketValue.Sub(pos.TotalCostBasis)

	if pos.HighWaterMark.IsZero() || price.GreaterThan(pos.HighWaterMark) {
		pos.HighWaterMark = price
	}
	if pos.HighWaterMark.IsPositive() {
		dd := pos.HighWaterMark.Sub(price).Div(pos.HighWaterMark)
		pos.DrawdownFromHighPct = dd.InexactFloat64() * 100
	}
}

// PerformanceSnapshot is one daily equity observation.
type PerformanceSnapshot struct {
	TakenAt             time.Time       `json:"taken_at"`
	TotalValue          decimal.Decimal `json:"total_value"`
	Cash                decimal.Decimal `json:"cash"`
	PositionsValue      decimal.Decimal `json:"positions_value"`
	DailyReturnPct      float64         `json:"daily_return_pct"`
	CumulativeReturnPct float64         `json:"cumulative_return_pct"`
}

// ErrorEntry records an operational failure against the portfolio for
// operator visibility.
type ErrorEntry struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Resolved    bool      `json:"resolved"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Portfolio is the full per-agent ledger state.
type Portfolio struct {
	AgentID     string `json:"agent_id"`
	Methodology string `json:"methodology"`
	Status      Status `json:"status"`

	InitialCash decimal.Decimal `json:"initial_cash"`
	CurrentCash decimal.Decimal `json:"current_cash"`
	TotalValue  decimal.Decimal `json:"total_value"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	TotalReturnPct     float64         `json:"total_return_pct"`
	Sharpe             Sharpe          `json:"sharpe"`
	MaxDrawdownPct     float64         `json:"max_drawdown_pct"`
	CurrentDrawdownPct float64         `json:"current_drawdown_pct"`
	PeakValue          decimal.Decimal `json:"peak_value"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	Positions []*Position           `json:"positions"`
	Trades    []Trade               `json:"trades"`
	Snapshots []PerformanceSnapshot `json:"snapshots"`
	Errors    []ErrorEntry          `json:"errors"`
	Actions   []CorporateAction     `json:"corporate_actions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active portfolio with the given starting cash. An empty
// agentID gets a generated UUID.
func New(agentID, methodology string, initialCash decimal.Decimal) *Portfolio {
	if agentID == "" {
		agentID = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Portfolio{
		AgentID:     agentID,
		Methodology: methodology,
		Status:      StatusActive,
		InitialCash: initialCash,
		CurrentCash: initialCash,
		TotalValue:  initialCash,
		PeakValue:   initialCash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FindPosition returns the open position for ticker, or nil.
func (p *Portfolio) FindPosition(ticker string) *Position {
	for _, pos := range p.Positions {
		if pos.Ticker == ticker {
			return pos
		}
	}
	return nil
}

// RemovePosition drops the position for ticker, preserving order.
func (p *Portfolio) RemovePosition(ticker string) {
	for i, pos := range p.Positions {
		if pos.Ticker == ticker {
			p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
			return
		}
	}
}

// PositionsValue sums the market value of all open positions.
func (p *Portfolio) PositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue)
	}
	return total
}

// DeployedCost sums the cost basis tied up in open positions.
func (p *Portfolio) DeployedCost() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.TotalCostBasis)
	}
	return total
}

// RecomputeTotals re-derives TotalValue and the cumulative return from cash
// and current position marks. Invariant: TotalValue == CurrentCash + Σ
// position.MarketValue.
func (p *Portfolio) RecomputeTotals() {
	p.TotalValue = p.CurrentCash.Add(p.PositionsValue())
	if p.InitialCash.IsPositive() {
		ret := p.TotalValue.Sub(p.InitialCash).Div(p.InitialCash)
		p.TotalReturnPct = ret.InexactFloat64() * 100
	}
}

// ClosedTrades is the number of scoring sell outcomes recorded so far.
func (p *Portfolio) ClosedTrades() int { return p.Wins + p.Losses }

// WinRate is wins over closed trades, 0 when nothing has closed.
func (p *Portfolio) WinRate() float64 {
	closed := p.ClosedTrades()
	if closed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(closed)
}

// UpdateRiskState ratchets the peak value, recomputes current and max
// drawdown, and walks the status machine forward:
//
//	active -> paused      when current drawdown >= pausePct
//	       -> liquidated  when current drawdown >= liquidatePct (terminal)
//
// Transitions never reverse automatically. Returns the previous status and
// whether it changed.
func (p *Portfolio) UpdateRiskState(pausePct, liquidatePct float64) (Status, bool) {
	if p.TotalValue.GreaterThan(p.PeakValue) {
		p.PeakValue = p.TotalValue
	}

	p.CurrentDrawdownPct = 0
	if p.PeakValue.IsPositive() {
		dd := p.PeakValue.Sub(p.TotalValue).Div(p.PeakValue)
		p.CurrentDrawdownPct = dd.InexactFloat64() * 100
	}
	if p.CurrentDrawdownPct > p.MaxDrawdownPct {
		p.MaxDrawdownPct = p.CurrentDrawdownPct
	}

	prev := p.Status
	switch p.Status {
	case StatusActive:
		if liquidatePct > 0 && p.CurrentDrawdownPct >= liquidatePct {
			p.Status = StatusLiquidated
		} else if pausePct > 0 && p.CurrentDrawdownPct >= pausePct {
			p.Status = StatusPaused
		}
	case StatusPaused:
		if liquidatePct > 0 && p.CurrentDrawdownPct >= liquidatePct {
			p.Status = StatusLiquidated
		}
	}
	return prev, p.Status != prev
}

// LogError appends an operational error, evicting oldest resolved entries
// first (then oldest outright) once maxEntries is exceeded.
func (p *Portfolio) LogError(code ErrorCode, msg string, recoverable bool, at time.Time, maxEntries int) {
	p.Errors = append(p.Errors, ErrorEntry{
		Code:        code,
		Message:     msg,
		Recoverable: recoverable,
		OccurredAt:  at,
	})
	if maxEntries <= 0 || len(p.Errors) <= maxEntries {
		return
	}

	for len(p.Errors) > maxEntries {
		evicted := false
		for i, e := range p.Errors {
			if e.Resolved {
				p.Errors = append(p.Errors[:i], p.Errors[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			p.Errors = p.Errors[1:]
		}
	}
}

// Clone returns a deep copy, safe to retain across later mutations.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p

	cp.Positions = make([]*Position, len(p.Positions))
	for i, pos := range p.Positions {
		dup := *pos
		cp.Positions[i] = &dup
	}
	cp.Trades = append([]Trade(nil), p.Trades...)
	cp.Snapshots = append([]PerformanceSnapshot(nil), p.Snapshots...)
	cp.Errors = append([]ErrorEntry(nil), p.Errors...)
	cp.Actions = append([]CorporateAction(nil), p.Actions...)

	return &cp
}
