package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func trade(ticker string, side portfolio.Side, shares int64, price string, at time.Time) portfolio.Trade {
	p := d(price)
	return portfolio.Trade{
		Ticker:     ticker,
		Side:       side,
		Shares:     shares,
		Price:      p,
		TotalValue: p.Mul(decimal.NewFromInt(shares)),
		ExecutedAt: at,
	}
}

func TestMatchFIFOPartialLots(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("AAPL", portfolio.SideBuy, 10, "10", t0),
		trade("AAPL", portfolio.SideBuy, 5, "20", t0.Add(time.Hour)),
		trade("AAPL", portfolio.SideSell, 12, "15", t0.Add(2*time.Hour)),
	}

	closed := MatchFIFO(trades)
	require.Len(t, closed, 1)

	c := closed[0]
	assert.Equal(t, int64(12), c.Shares)
	assert.True(t, c.CostBasis.Equal(d("140")), "10x10 + 2x20, got %s", c.CostBasis)
	assert.True(t, c.Proceeds.Equal(d("180")))
	assert.True(t, c.RealizedPnL.Equal(d("40")))
	assert.Equal(t, t0, c.OpenedAt, "opened at the earliest matched lot")
	assert.InDelta(t, 40.0/140.0*100, c.ReturnPct, 1e-9)
}

func TestMatchFIFOHoldingDays(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("AAPL", portfolio.SideBuy, 10, "100", t0),
		trade("AAPL", portfolio.SideSell, 10, "110", t0.Add(73*time.Hour)),
	}

	closed := MatchFIFO(trades)
	require.Len(t, closed, 1)
	assert.Equal(t, 3, closed[0].HoldingDays, "73h rounds down to three days")
}

func TestMatchFIFOAcrossTickers(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("AAPL", portfolio.SideBuy, 10, "100", t0),
		trade("NVDA", portfolio.SideBuy, 10, "500", t0),
		trade("AAPL", portfolio.SideSell, 10, "110", t0.Add(time.Hour)),
		trade("NVDA", portfolio.SideSell, 4, "450", t0.Add(time.Hour)),
	}

	closed := MatchFIFO(trades)
	require.Len(t, closed, 2)

	assert.Equal(t, "AAPL", closed[0].Ticker)
	assert.True(t, closed[0].RealizedPnL.Equal(d("100")))
	assert.Equal(t, "NVDA", closed[1].Ticker)
	assert.True(t, closed[1].RealizedPnL.Equal(d("-200")))
}

func TestMatchFIFOConsumesLotsInOrder(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("X", portfolio.SideBuy, 5, "10", t0),
		trade("X", portfolio.SideBuy, 5, "30", t0.Add(time.Minute)),
		trade("X", portfolio.SideSell, 5, "20", t0.Add(2*time.Minute)),
		trade("X", portfolio.SideSell, 5, "20", t0.Add(3*time.Minute)),
	}

	closed := MatchFIFO(trades)
	require.Len(t, closed, 2)
	assert.True(t, closed[0].RealizedPnL.Equal(d("50")), "first sell hits the $10 lot")
	assert.True(t, closed[1].RealizedPnL.Equal(d("-50")), "second sell hits the $30 lot")
}

func TestMatchFIFOOversell(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("X", portfolio.SideBuy, 5, "10", t0),
		trade("X", portfolio.SideSell, 8, "12", t0.Add(time.Minute)),
	}

	closed := MatchFIFO(trades)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(5), closed[0].Shares, "only the covered shares match")
	assert.True(t, closed[0].RealizedPnL.Equal(d("10")))
}

func TestMatchFIFOSellWithNoLots(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []portfolio.Trade{
		trade("X", portfolio.SideSell, 8, "12", t0),
	}
	assert.Empty(t, MatchFIFO(trades))
}

func TestMatchFIFOEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, MatchFIFO(nil))
}
