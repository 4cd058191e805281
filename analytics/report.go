package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Report is the full performance picture for one agent. Closed-trade
// figures are FIFO-derived from the trade log and may differ from the
// ledger's live weighted-average accounting; the trade log is the source of
// truth for reporting.
type Report struct {
	AgentID     string           `json:"agent_id"`
	Methodology string           `json:"methodology"`
	Status      portfolio.Status `json:"status"`

	TotalValue     decimal.Decimal `json:"total_value"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`

	TotalReturnPct     float64          `json:"total_return_pct"`
	WinRate            float64          `json:"win_rate"`
	ProfitFactor       float64          `json:"profit_factor"`
	Sharpe             portfolio.Sharpe `json:"sharpe"`
	VolatilityPct      float64          `json:"volatility_pct"` // annualized
	MaxDrawdownPct     float64          `json:"max_drawdown_pct"`
	CurrentDrawdownPct float64          `json:"current_drawdown_pct"`

	OpenPositions int              `json:"open_positions"`
	TradeCount    int              `json:"trade_count"`
	Closed        []ClosedPosition `json:"closed_positions"`

	GeneratedAt time.Time `json:"generated_at"`
}

// BuildReport derives every reportable metric from the portfolio's recorded
// history at now.
func BuildReport(p *portfolio.Portfolio, now time.Time) Report {
	closed := MatchFIFO(p.Trades)
	daily := DailyReturns(p.Snapshots)

	unrealized := decimal.Zero
	for _, pos := range p.Positions {
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}

	return Report{
		AgentID:     p.AgentID,
		Methodology: p.Methodology,
		Status:      p.Status,

		TotalValue:     p.TotalValue,
		Cash:           p.CurrentCash,
		PositionsValue: p.PositionsValue(),
		RealizedPnL:    p.RealizedPnL,
		UnrealizedPnL:  unrealized,

		TotalReturnPct:     p.TotalReturnPct,
		WinRate:            WinRate(closed),
		ProfitFactor:       ProfitFactor(closed),
		Sharpe:             SharpeRatio(daily),
		VolatilityPct:      AnnualizedVolatility(daily),
		MaxDrawdownPct:     p.MaxDrawdownPct,
		CurrentDrawdownPct: p.CurrentDrawdownPct,

		OpenPositions: len(p.Positions),
		TradeCount:    len(p.Trades),
		Closed:        closed,

		GeneratedAt: now,
	}
}
