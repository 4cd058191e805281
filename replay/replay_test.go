package replay

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/Drix10/hypothesis-arena/ledger"
	"github.com/Drix10/hypothesis-arena/risk"
)

const scenarioYAML = `
name: two-day-demo
cycles:
  - at: 2025-06-02T14:00:00Z
    prices:
      AAPL: 50
    signals:
      - ticker: AAPL
        recommendation: strong_buy
        confidence: 80
        thesis_id: th-1
        debate: {winner: bull, margin: 25}
  - at: 2025-06-03T15:00:00Z
    prices:
      AAPL: 60
    signals:
      - agent: a1
        ticker: AAPL
        recommendation: strong_sell
        confidence: 70
        thesis_id: th-2
        debate: {winner: bear, margin: 20}
      - ticker: AAPL
        recommendation: buy
        confidence: 30
        thesis_id: th-3
    actions:
      - ticker: AAPL
        kind: dividend
        amount: 0.5
`

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	sc, err := Load(writeScenario(t, "demo.yaml", scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "two-day-demo", sc.Name)
	require.Len(t, sc.Cycles, 2)
	assert.Equal(t, 50.0, sc.Cycles[0].Prices["AAPL"])
	require.Len(t, sc.Cycles[1].Signals, 2)
	assert.Equal(t, "a1", sc.Cycles[1].Signals[0].Agent)
	require.NotNil(t, sc.Cycles[1].Signals[0].Debate)
	assert.Equal(t, "bear", sc.Cycles[1].Signals[0].Debate.Winner)

	start, end := sc.Span()
	assert.Equal(t, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), start)
	assert.True(t, end.After(start))
}

func TestLoadXZ(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "demo.yaml.xz")
	f, err := os.Create(path)
	require.NoError(t, err)
	xw, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = xw.Write([]byte(scenarioYAML))
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	require.NoError(t, f.Close())

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "two-day-demo", sc.Name)
	assert.Len(t, sc.Cycles, 2)
}

func TestLoadRejectsBadScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"no cycles", "name: empty\ncycles: []\n", "no cycles"},
		{"missing at", "cycles:\n  - prices: {AAPL: 50}\n", "at is required"},
		{
			"cycles out of order",
			"cycles:\n  - at: 2025-06-03T00:00:00Z\n  - at: 2025-06-02T00:00:00Z\n",
			"before the previous cycle",
		},
		{
			"non-positive price",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    prices: {AAPL: 0}\n",
			"must be positive",
		},
		{
			"unknown recommendation",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    signals:\n      - {ticker: AAPL, recommendation: moon, confidence: 50}\n",
			"unknown recommendation",
		},
		{
			"confidence out of range",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    signals:\n      - {ticker: AAPL, recommendation: buy, confidence: 140}\n",
			"out of 0..100",
		},
		{
			"bad debate winner",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    signals:\n      - {ticker: AAPL, recommendation: buy, confidence: 50, debate: {winner: judge, margin: 10}}\n",
			"bull or bear",
		},
		{
			"split without ratio",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    actions:\n      - {ticker: AAPL, kind: split}\n",
			"ratio must be positive",
		},
		{
			"unknown action kind",
			"cycles:\n  - at: 2025-06-02T00:00:00Z\n    actions:\n      - {ticker: AAPL, kind: spinoff}\n",
			"unknown kind",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeScenario(t, "bad.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.Options{
		Policy: risk.Policy{
			MinTradeValue:    decimal.NewFromInt(500),
			MaxPositionPct:   5.5,
			MaxDeployedPct:   80,
			CashReservePct:   10,
			MaxOpenPositions: 10,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	for _, id := range []string{"a1", "a2"} {
		_, err := l.AddAgent(id, "momentum", decimal.NewFromInt(100000))
		require.NoError(t, err)
	}
	return l
}

func TestRunScenario(t *testing.T) {
	t.Parallel()

	sc, err := Load(writeScenario(t, "demo.yaml", scenarioYAML))
	require.NoError(t, err)

	l := newTestLedger(t)
	r := &Runner{Ledger: l, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	res, err := r.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 2, res.QuotesApplied)
	// day one: both agents buy; day two: a1 closes out
	assert.Equal(t, 3, res.TradesExecuted)
	// the weak broadcast buy holds for both agents
	assert.Equal(t, 2, res.SignalsSkipped)
	assert.Zero(t, res.TradesBlocked)
	// the dividend reaches only a2, who still holds
	assert.Equal(t, 1, res.ActionsApplied)
	assert.Equal(t, 4, res.SnapshotsTaken)

	a1, err := l.Agent("a1")
	require.NoError(t, err)
	assert.Empty(t, a1.Positions)
	assert.True(t, a1.CurrentCash.Equal(decimal.NewFromInt(101000)), "95000 plus 6000 proceeds, got %s", a1.CurrentCash)
	assert.True(t, a1.RealizedPnL.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 1, a1.Wins)

	a2, err := l.Agent("a2")
	require.NoError(t, err)
	require.Len(t, a2.Positions, 1)
	assert.Equal(t, int64(100), a2.Positions[0].Shares)
	assert.True(t, a2.CurrentCash.Equal(decimal.NewFromInt(95050)), "dividend credited, got %s", a2.CurrentCash)
	assert.True(t, a2.TotalValue.Equal(decimal.NewFromInt(101050)))
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	sc, err := Load(writeScenario(t, "demo.yaml", scenarioYAML))
	require.NoError(t, err)

	run := func() (*Result, decimal.Decimal) {
		l := newTestLedger(t)
		r := &Runner{Ledger: l, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
		res, err := r.Run(context.Background(), sc)
		require.NoError(t, err)
		p, err := l.Agent("a1")
		require.NoError(t, err)
		return res, p.TotalValue
	}

	res1, tv1 := run()
	res2, tv2 := run()
	assert.Equal(t, res1, res2)
	assert.True(t, tv1.Equal(tv2))
}

func TestRunHonorsContext(t *testing.T) {
	t.Parallel()

	sc, err := Load(writeScenario(t, "demo.yaml", scenarioYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newTestLedger(t)
	r := &Runner{Ledger: l, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err = r.Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
}
