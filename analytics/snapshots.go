package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// SnapshotInterval is the minimum spacing between performance snapshots.
const SnapshotInterval = 24 * time.Hour

// ShouldSnapshot reports whether a new snapshot is due at now. The first
// snapshot is always due; afterwards one per rolling 24 hours.
func ShouldSnapshot(snaps []portfolio.PerformanceSnapshot, now time.Time) bool {
	if len(snaps) == 0 {
		return true
	}
	return now.Sub(snaps[len(snaps)-1].TakenAt) >= SnapshotInterval
}

// DailyReturnPct compares totalValue against the baseline snapshot: the
// latest one taken at or before now minus 24h, falling back to the earliest
// snapshot for portfolios younger than a day. ok is false when no snapshots
// exist or the baseline value is not positive.
func DailyReturnPct(snaps []portfolio.PerformanceSnapshot, totalValue decimal.Decimal, now time.Time) (pct float64, ok bool) {
	if len(snaps) == 0 {
		return 0, false
	}

	cutoff := now.Add(-SnapshotInterval)
	baseline := snaps[0]
	for _, s := range snaps {
		if s.TakenAt.After(cutoff) {
			break
		}
		baseline = s
	}
	if !baseline.TotalValue.IsPositive() {
		return 0, false
	}
	r := totalValue.Sub(baseline.TotalValue).Div(baseline.TotalValue)
	return r.InexactFloat64() * 100, true
}

// BuildSnapshot assembles the snapshot record for a portfolio at now.
func BuildSnapshot(p *portfolio.Portfolio, now time.Time) portfolio.PerformanceSnapshot {
	snap := portfolio.PerformanceSnapshot{
		TakenAt:             now,
		TotalValue:          p.TotalValue,
		Cash:                p.CurrentCash,
		PositionsValue:      p.PositionsValue(),
		CumulativeReturnPct: p.TotalReturnPct,
	}
	if pct, ok := DailyReturnPct(p.Snapshots, p.TotalValue, now); ok {
		snap.DailyReturnPct = pct
	}
	return snap
}
