// Package analytics derives performance measures from a portfolio's trade
// and snapshot history. Everything here is a pure function of recorded
// state; live position accounting stays in the ledger.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// maxMatchIterations bounds lot consumption per sell so corrupt trade
// history cannot spin the matcher forever.
const maxMatchIterations = 10000

// ClosedPosition is one completed round trip: a sell matched FIFO against
// the earliest still-open buy lots of the same ticker.
type ClosedPosition struct {
	Ticker      string          `json:"ticker"`
	Shares      int64           `json:"shares"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ReturnPct   float64         `json:"return_pct"`
	OpenedAt    time.Time       `json:"opened_at"` // earliest matched lot
	ClosedAt    time.Time       `json:"closed_at"`
	HoldingDays int             `json:"holding_days"`
}

// lot is the unsold remainder of one buy.
type lot struct {
	shares       int64
	costPerShare decimal.Decimal
	at           time.Time
}

// MatchFIFO walks trades in execution order and pairs each sell with the
// oldest open buy lots of its ticker. A sell with more shares than the open
// lots cover (corrupt history) matches what exists and drops the rest.
func MatchFIFO(trades []portfolio.Trade) []ClosedPosition {
	open := make(map[string][]lot)
	var closed []ClosedPosition

	for _, tr := range trades {
		switch tr.Side {
		case portfolio.SideBuy:
			open[tr.Ticker] = append(open[tr.Ticker], lot{
				shares:       tr.Shares,
				costPerShare: tr.Price,
				at:           tr.ExecutedAt,
			})

		case portfolio.SideSell:
			lots := open[tr.Ticker]
			remaining := tr.Shares
			matched := int64(0)
			cost := decimal.Zero
			var openedAt time.Time

			for i := 0; remaining > 0 && len(lots) > 0 && i < maxMatchIterations; i++ {
				head := &lots[0]
				take := head.shares
				if take > remaining {
					take = remaining
				}
				if openedAt.IsZero() {
					openedAt = head.at
				}
				cost = cost.Add(head.costPerShare.Mul(decimal.NewFromInt(take)))
				matched += take
				remaining -= take
				head.shares -= take
				if head.shares == 0 {
					lots = lots[1:]
				}
			}
			open[tr.Ticker] = lots

			if matched == 0 {
				continue
			}
			proceeds := tr.Price.Mul(decimal.NewFromInt(matched))
			pnl := proceeds.Sub(cost)
			cp := ClosedPosition{
				Ticker:      tr.Ticker,
				Shares:      matched,
				CostBasis:   cost,
				Proceeds:    proceeds,
				RealizedPnL: pnl,
				OpenedAt:    openedAt,
				ClosedAt:    tr.ExecutedAt,
			}
			if cost.IsPositive() {
				cp.ReturnPct = pnl.Div(cost).InexactFloat64() * 100
			}
			if tr.ExecutedAt.After(openedAt) {
				cp.HoldingDays = int(tr.ExecutedAt.Sub(openedAt).Hours() / 24)
			}
			closed = append(closed, cp)
		}
	}
	return closed
}
