package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

const (
	// MinSharpeSamples is the number of daily returns required before a
	// Sharpe ratio is reported as valid.
	MinSharpeSamples = 30
	// tradingDaysPerYear annualizes daily figures.
	tradingDaysPerYear = 252
	// dailyRiskFree is the daily risk-free return subtracted to form excess
	// returns. Assumed zero for paper portfolios.
	dailyRiskFree = 0.0
)

// WinRate is the fraction of closed positions with positive realized P&L.
func WinRate(closed []ClosedPosition) float64 {
	if len(closed) == 0 {
		return 0
	}
	wins := 0
	for _, c := range closed {
		if c.RealizedPnL.IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(closed))
}

// ProfitFactor is gross profit over gross loss. With profits and no losses
// it returns +Inf; with no closed positions at all it returns 0.
func ProfitFactor(closed []ClosedPosition) float64 {
	profit := decimal.Zero
	loss := decimal.Zero
	for _, c := range closed {
		if c.RealizedPnL.IsPositive() {
			profit = profit.Add(c.RealizedPnL)
		} else {
			loss = loss.Add(c.RealizedPnL.Abs())
		}
	}
	switch {
	case loss.IsPositive():
		return profit.Div(loss).InexactFloat64()
	case profit.IsPositive():
		return math.Inf(1)
	default:
		return 0
	}
}

// SharpeRatio annualizes mean excess return over stddev of the daily return
// series. Below MinSharpeSamples the result is marked invalid and must not
// be compared against other agents.
func SharpeRatio(dailyReturns []float64) portfolio.Sharpe {
	if len(dailyReturns) < MinSharpeSamples {
		return portfolio.Sharpe{}
	}

	mean, std := meanStddev(dailyReturns)
	if std < 1e-12 {
		// flat series: defined as zero rather than dividing by nothing
		return portfolio.Sharpe{Value: 0, Valid: true}
	}
	return portfolio.Sharpe{
		Value: (mean - dailyRiskFree) / std * math.Sqrt(tradingDaysPerYear),
		Valid: true,
	}
}

// AnnualizedVolatility scales the sample stddev of daily returns to a
// yearly horizon. Zero below two samples.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	_, std := meanStddev(dailyReturns)
	return std * math.Sqrt(tradingDaysPerYear)
}

// meanStddev returns the mean and sample standard deviation. Needs at least
// two values.
func meanStddev(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		dev := x - mean
		variance += dev * dev
	}
	variance /= float64(len(xs) - 1)
	return mean, math.Sqrt(variance)
}

// DailyReturns converts a snapshot series into consecutive percent changes
// of total value, the input series for SharpeRatio.
func DailyReturns(snaps []portfolio.PerformanceSnapshot) []float64 {
	if len(snaps) < 2 {
		return nil
	}
	out := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].TotalValue
		if !prev.IsPositive() {
			continue
		}
		r := snaps[i].TotalValue.Sub(prev).Div(prev)
		out = append(out, r.InexactFloat64()*100)
	}
	return out
}

// DrawdownFromSnapshots recomputes maximum and current peak-to-trough
// drawdown percentages from the recorded equity history.
func DrawdownFromSnapshots(snaps []portfolio.PerformanceSnapshot) (maxPct, currentPct float64) {
	peak := decimal.Zero
	for _, s := range snaps {
		if s.TotalValue.GreaterThan(peak) {
			peak = s.TotalValue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(s.TotalValue).Div(peak).InexactFloat64() * 100
		if dd > maxPct {
			maxPct = dd
		}
		currentPct = dd
	}
	return maxPct, currentPct
}
