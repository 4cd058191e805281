package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// Validator screens quotes before they reach the ledger. Zero values disable
// the corresponding check.
type Validator struct {
	// MaxAge rejects quotes older than this relative to now.
	MaxAge time.Duration
	// MaxJumpPct flags (but does not reject) a move larger than this
	// percentage against the previous known price.
	MaxJumpPct float64
}

// Check validates q against the previous known price. A non-empty warning
// means the quote is suspicious but still usable; an error means it must not
// be used. prev may be zero when no prior price exists.
func (v Validator) Check(q Quote, prev decimal.Decimal, now time.Time) (string, error) {
	if !q.Price.IsPositive() {
		return "", portfolio.Errorf(portfolio.CodeInvalidPrice,
			"quote for %s has non-positive price %s", q.Ticker, q.Price)
	}
	if v.MaxAge > 0 && !q.AsOf.IsZero() && now.Sub(q.AsOf) > v.MaxAge {
		return "", portfolio.Errorf(portfolio.CodeStalePrice,
			"quote for %s is %s old, max %s", q.Ticker, now.Sub(q.AsOf).Round(time.Second), v.MaxAge)
	}

	if v.MaxJumpPct > 0 && prev.IsPositive() {
		jump := q.Price.Sub(prev).Div(prev).Abs().InexactFloat64() * 100
		if jump > v.MaxJumpPct {
			return fmt.Sprintf("quote for %s moved %.1f%% from %s to %s, over the %.1f%% threshold",
				q.Ticker, jump, prev, q.Price, v.MaxJumpPct), nil
		}
	}
	return "", nil
}
