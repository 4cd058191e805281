package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an immutable execution record. Trades are only ever appended;
// the journal's retention policy may drop the oldest records, nothing else
// touches them.
type Trade struct {
	ID             string          `json:"id"`
	Ticker         string          `json:"ticker"`
	Side           Side            `json:"side"`
	Shares         int64           `json:"shares"`
	Price          decimal.Decimal `json:"price"`
	TotalValue     decimal.Decimal `json:"total_value"`
	ExecutedAt     time.Time       `json:"executed_at"`
	Confidence     float64         `json:"confidence"`
	Recommendation string          `json:"recommendation"`
	ThesisID       string          `json:"thesis_id,omitempty"`
	Valid          bool            `json:"valid"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"` // sells only, zero on buys
}

type ActionKind string

const (
	ActionSplit    ActionKind = "split"
	ActionDividend ActionKind = "dividend"
)

// CorporateAction adjusts a position outside normal trading: a split
// multiplies shares by Ratio and divides cost basis, a dividend credits
// Amount per held share as cash.
type CorporateAction struct {
	ID         string          `json:"id"`
	Ticker     string          `json:"ticker"`
	Kind       ActionKind      `json:"kind"`
	Ratio      decimal.Decimal `json:"ratio,omitempty"`  // split only
	Amount     decimal.Decimal `json:"amount,omitempty"` // dividend only, per share
	ExecutedAt time.Time       `json:"executed_at"`
	Applied    bool            `json:"applied"`
}
