package ledger

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/portfolio"
	"github.com/Drix10/hypothesis-arena/risk"
)

// Monday 15:00 UTC, inside the New York session.
var baseTime = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// clock is a settable time source shared with the ledger under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(by time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(by)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, opts Options) (*Ledger, *clock) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	l := New(opts)
	c := newClock(baseTime)
	l.SetClock(c.Now)
	return l, c
}

func seedAgent(t *testing.T, l *Ledger, id, cash string) {
	t.Helper()
	_, err := l.AddAgent(id, "momentum", d(cash))
	require.NoError(t, err)
}

func mustTrade(t *testing.T, l *Ledger, id string, req TradeRequest) *portfolio.Trade {
	t.Helper()
	tr, err := l.ExecuteTrade(id, req)
	require.NoError(t, err)
	require.NotNil(t, tr)
	return tr
}

func buyReq(ticker string, shares int64, price string) TradeRequest {
	return TradeRequest{Ticker: ticker, Side: portfolio.SideBuy, Shares: shares, Price: d(price)}
}

func sellReq(ticker string, shares int64, price string) TradeRequest {
	return TradeRequest{Ticker: ticker, Side: portfolio.SideSell, Shares: shares, Price: d(price)}
}

// assertConservation checks that cash plus deployed cost basis equals
// initial cash plus realized P&L. Every pure trading sequence must hold it.
func assertConservation(t *testing.T, p *portfolio.Portfolio) {
	t.Helper()
	lhs := p.InitialCash.Add(p.RealizedPnL)
	rhs := p.CurrentCash.Add(p.DeployedCost())
	assert.True(t, lhs.Equal(rhs), "cash not conserved: initial+realized %s, cash+basis %s", lhs, rhs)
}

func TestAddAgent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	p, err := l.AddAgent("a1", "value", d("50000"))
	require.NoError(t, err)
	assert.Equal(t, "a1", p.AgentID)
	assert.True(t, p.CurrentCash.Equal(d("50000")))

	_, err = l.AddAgent("a1", "value", d("50000"))
	assert.ErrorIs(t, err, ErrAgentExists)

	_, err = l.AddAgent("a2", "value", decimal.Zero)
	assert.Error(t, err)

	_, err = l.Agent("ghost")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestAgentReturnsCopy(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")
	mustTrade(t, l, "a1", buyReq("AAPL", 10, "100"))

	snap, err := l.Agent("a1")
	require.NoError(t, err)
	snap.CurrentCash = d("1")
	snap.Positions[0].Shares = 999

	again, err := l.Agent("a1")
	require.NoError(t, err)
	assert.True(t, again.CurrentCash.Equal(d("99000")))
	assert.Equal(t, int64(10), again.Positions[0].Shares)
}

func TestBuyOpensAndMergesPosition(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")

	mustTrade(t, l, "a1", buyReq("AAPL", 10, "10"))
	mustTrade(t, l, "a1", buyReq("AAPL", 5, "20"))

	p, err := l.Agent("a1")
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	pos := p.Positions[0]
	assert.Equal(t, int64(15), pos.Shares)
	assert.True(t, pos.TotalCostBasis.Equal(d("200")))
	// weighted average: 200 / 15
	assert.InDelta(t, 13.3333, pos.AvgCostBasis.InexactFloat64(), 1e-3)
	assert.True(t, p.CurrentCash.Equal(d("99800")))
	assert.True(t, p.TotalValue.Equal(d("100100")), "cash 99800 + 15 shares marked at 20")
	assertConservation(t, p)
}

func TestSellPartialAndFull(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")

	mustTrade(t, l, "a1", buyReq("AAPL", 10, "10"))
	c.Advance(time.Minute)
	mustTrade(t, l, "a1", buyReq("AAPL", 5, "20"))
	c.Advance(time.Minute)

	// live accounting removes average cost: 200 * 12/15 = 160
	tr := mustTrade(t, l, "a1", sellReq("AAPL", 12, "15"))
	assert.True(t, tr.RealizedPnL.Equal(d("20")), "180 proceeds less 160 average cost, got %s", tr.RealizedPnL)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, int64(3), p.Positions[0].Shares)
	assert.True(t, p.Positions[0].TotalCostBasis.Equal(d("40")))
	assert.True(t, p.RealizedPnL.Equal(d("20")))
	assert.Equal(t, 1, p.Wins)
	assertConservation(t, p)

	// selling the rest removes the position
	c.Advance(time.Minute)
	mustTrade(t, l, "a1", sellReq("AAPL", 3, "15"))
	p, err = l.Agent("a1")
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
	assertConservation(t, p)
}

func TestRejectionsLeaveStateUntouched(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "1000")
	mustTrade(t, l, "a1", buyReq("AAPL", 10, "10"))

	before, err := l.Agent("a1")
	require.NoError(t, err)

	tests := []struct {
		name string
		req  TradeRequest
		code portfolio.ErrorCode
	}{
		{"insufficient cash", buyReq("NVDA", 1000, "100"), portfolio.CodeInsufficientCash},
		{"zero shares", buyReq("NVDA", 0, "100"), portfolio.CodeInvalidShares},
		{"negative price", buyReq("NVDA", 1, "-5"), portfolio.CodeInvalidPrice},
		{"oversell", sellReq("AAPL", 11, "10"), portfolio.CodeInvalidShares},
		{"sell unheld", sellReq("MSFT", 1, "10"), portfolio.CodePositionNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tr, err := l.ExecuteTrade("a1", tt.req)
			require.Error(t, err)
			assert.Nil(t, tr)
			assert.True(t, portfolio.IsCode(err, tt.code), "got %v", err)

			after, err := l.Agent("a1")
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected trade must not change anything")
		})
	}
}

func TestPositionLimit(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{
		Policy: risk.Policy{
			MinTradeValue:    d("1"),
			MaxPositionPct:   50,
			MaxDeployedPct:   100,
			CashReservePct:   0,
			MaxOpenPositions: 2,
		},
	})
	seedAgent(t, l, "a1", "100000")
	mustTrade(t, l, "a1", buyReq("AAPL", 1, "10"))
	mustTrade(t, l, "a1", buyReq("NVDA", 1, "10"))

	_, err := l.ExecuteTrade("a1", buyReq("MSFT", 1, "10"))
	assert.True(t, portfolio.IsCode(err, portfolio.CodePositionLimit))

	// topping up a held ticker still works
	tr, err := l.ExecuteTrade("a1", buyReq("AAPL", 2, "11"))
	require.NoError(t, err)
	require.NotNil(t, tr)
}

func TestDuplicateTradeIsSilentNoOp(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")

	first := mustTrade(t, l, "a1", buyReq("AAPL", 10, "50"))
	require.NotNil(t, first)

	// identical submission inside the window: dropped without error
	dup, err := l.ExecuteTrade("a1", buyReq("AAPL", 10, "50"))
	require.NoError(t, err)
	assert.Nil(t, dup)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	assert.Len(t, p.Trades, 1)
	assert.True(t, p.CurrentCash.Equal(d("99500")), "cash debited once")

	// same fill after the window is a real trade
	c.Advance(6 * time.Second)
	again, err := l.ExecuteTrade("a1", buyReq("AAPL", 10, "50"))
	require.NoError(t, err)
	require.NotNil(t, again)

	p, err = l.Agent("a1")
	require.NoError(t, err)
	assert.Len(t, p.Trades, 2)

	// a different price inside the window is not a duplicate
	diff, err := l.ExecuteTrade("a1", buyReq("AAPL", 10, "51"))
	require.NoError(t, err)
	require.NotNil(t, diff)
}

func TestPausedAgentMaySellNotBuy(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{PauseDrawdownPct: 20, LiquidateDrawdownPct: 90})
	seedAgent(t, l, "a1", "100000")
	mustTrade(t, l, "a1", buyReq("AAPL", 1000, "50"))

	// price collapse pauses the agent
	_, err := l.RefreshPrices([]market.Quote{{Ticker: "AAPL", Price: d("20"), AsOf: c.Now()}})
	require.NoError(t, err)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	require.Equal(t, portfolio.StatusPaused, p.Status)

	_, err = l.ExecuteTrade("a1", buyReq("AAPL", 1, "20"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")

	tr, err := l.ExecuteTrade("a1", sellReq("AAPL", 1000, "20"))
	require.NoError(t, err)
	require.NotNil(t, tr)
}

func TestLiquidatedAgentIsFrozen(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{PauseDrawdownPct: 10, LiquidateDrawdownPct: 30})
	seedAgent(t, l, "a1", "100000")
	mustTrade(t, l, "a1", buyReq("AAPL", 1000, "50"))

	_, err := l.RefreshPrices([]market.Quote{{Ticker: "AAPL", Price: d("10"), AsOf: c.Now()}})
	require.NoError(t, err)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	require.Equal(t, portfolio.StatusLiquidated, p.Status)

	_, err = l.ExecuteTrade("a1", sellReq("AAPL", 1, "10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liquidated")
}

func TestMarketHoursGate(t *testing.T) {
	t.Parallel()

	ny, err := market.NewYorkHours()
	require.NoError(t, err)

	l, c := newTestLedger(t, Options{Hours: ny, EnforceHours: true})
	seedAgent(t, l, "a1", "100000")

	// Monday session: fine
	mustTrade(t, l, "a1", buyReq("AAPL", 1, "50"))

	// Saturday: rejected
	c.Advance(5 * 24 * time.Hour)
	_, err = l.ExecuteTrade("a1", buyReq("AAPL", 2, "50"))
	require.Error(t, err)
	assert.True(t, portfolio.IsCode(err, portfolio.CodeMarketClosed))
}

func TestExecuteDecisionSizesTheBuy(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{
		Policy: risk.Policy{
			MinTradeValue:    d("500"),
			MaxPositionPct:   5.5,
			MaxDeployedPct:   80,
			CashReservePct:   10,
			MaxOpenPositions: 10,
		},
	})
	seedAgent(t, l, "a1", "100000")
	l.Board().Set(market.Quote{Ticker: "AAPL", Price: d("50"), AsOf: c.Now()})

	// confidence 80 signal, debate won by 25: adjusted to 90, sized to
	// 500 + 5000*0.9 = 5000, then 100 shares at $50
	view, err := l.ViewFor("a1", "AAPL")
	require.NoError(t, err)
	out := decision.Evaluate(l.Thresholds(),
		decision.Signal{Ticker: "AAPL", Recommendation: decision.RecStrongBuy, Confidence: 80, ThesisID: "th-1"},
		decision.Debate{Winner: decision.StanceBull, Margin: 25},
		view,
	)
	require.InDelta(t, 90, out.Confidence, 1e-9)

	tr, err := l.ExecuteDecision("a1", out)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, int64(100), tr.Shares)
	assert.True(t, tr.Price.Equal(d("50")))
	assert.Equal(t, "th-1", tr.ThesisID)
	assert.Equal(t, string(decision.RecStrongBuy), tr.Recommendation)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	assert.True(t, p.CurrentCash.Equal(d("95000")))
	assert.True(t, p.TotalValue.Equal(d("100000")))
	assertConservation(t, p)

	// a strong sell that lost its debate degrades to HOLD: nothing moves
	l.Board().Set(market.Quote{Ticker: "AAPL", Price: d("60"), AsOf: c.Now()})
	view, err = l.ViewFor("a1", "AAPL")
	require.NoError(t, err)
	require.Equal(t, int64(100), view.HeldShares)
	out = decision.Evaluate(l.Thresholds(),
		decision.Signal{Ticker: "AAPL", Recommendation: decision.RecStrongSell, Confidence: 80, ThesisID: "th-2"},
		decision.Debate{Winner: decision.StanceBull, Margin: 30},
		view,
	)
	require.True(t, out.Skipped)
	assert.Equal(t, decision.ActionHold, out.Action)
	assert.Equal(t, "debate lost", out.SkipReason)

	tr, err = l.ExecuteDecision("a1", out)
	require.NoError(t, err)
	assert.Nil(t, tr)

	p, err = l.Agent("a1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Positions[0].Shares)
	assert.True(t, p.CurrentCash.Equal(d("95000")))
}

func TestExecuteDecisionSkipsAndBlocks(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")

	// skipped outcomes do nothing
	tr, err := l.ExecuteDecision("a1", decision.Outcome{
		Action: decision.ActionHold, Ticker: "AAPL", Skipped: true, SkipReason: "hold",
	})
	require.NoError(t, err)
	assert.Nil(t, tr)

	// no quote on the board
	_, err = l.ExecuteDecision("a1", decision.Outcome{Action: decision.ActionBuy, Ticker: "AAPL", Confidence: 90})
	assert.True(t, portfolio.IsCode(err, portfolio.CodeStalePrice))

	// a sell with no position surfaces the sizing violation
	l.Board().Set(market.Quote{Ticker: "AAPL", Price: d("50"), AsOf: c.Now()})
	_, err = l.ExecuteDecision("a1", decision.Outcome{Action: decision.ActionSell, Ticker: "AAPL", Confidence: 90})
	assert.True(t, portfolio.IsCode(err, portfolio.CodePositionNotFound))
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()

	run := func() *portfolio.Portfolio {
		l, c := newTestLedger(t, Options{})
		seedAgent(t, l, "a1", "100000")
		mustTrade(t, l, "a1", buyReq("AAPL", 10, "10"))
		c.Advance(time.Minute)
		mustTrade(t, l, "a1", buyReq("NVDA", 5, "200"))
		c.Advance(time.Minute)
		mustTrade(t, l, "a1", sellReq("AAPL", 4, "12"))
		p, err := l.Agent("a1")
		require.NoError(t, err)
		return p
	}

	a, b := run(), run()
	assert.True(t, a.CurrentCash.Equal(b.CurrentCash))
	assert.True(t, a.TotalValue.Equal(b.TotalValue))
	assert.True(t, a.RealizedPnL.Equal(b.RealizedPnL))
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, a.Trades[i].Ticker, b.Trades[i].Ticker)
		assert.Equal(t, a.Trades[i].Shares, b.Trades[i].Shares)
		assert.True(t, a.Trades[i].Price.Equal(b.Trades[i].Price))
	}
}

func TestAggregates(t *testing.T) {
	t.Parallel()

	l, c := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")
	seedAgent(t, l, "a2", "100000")

	mustTrade(t, l, "a1", buyReq("AAPL", 10, "50"))
	mustTrade(t, l, "a2", buyReq("AAPL", 10, "50"))
	c.Advance(time.Minute)
	mustTrade(t, l, "a1", sellReq("AAPL", 10, "55"))

	agg := l.Aggregates()
	assert.Equal(t, int64(3), agg.TotalTrades)
	assert.Equal(t, int64(2), agg.TotalBuys)
	assert.Equal(t, int64(1), agg.TotalSells)
	assert.Equal(t, int64(3), agg.TradesByTicker["AAPL"])
	assert.True(t, agg.TotalVolume.Equal(d("1550")), "500+500+550, got %s", agg.TotalVolume)

	// returned copy does not alias internal state
	agg.TradesByTicker["AAPL"] = 0
	assert.Equal(t, int64(3), l.Aggregates().TradesByTicker["AAPL"])
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	seedAgent(t, l, "a1", "100000")
	l.logAgentError("a1", portfolio.CodeStalePrice, "stale AAPL")
	l.logAgentError("a1", portfolio.CodeStalePrice, "stale NVDA")
	l.logAgentError("a1", portfolio.CodeUpstreamAPI, "timeout")

	n, err := l.ResolveErrors("a1", portfolio.CodeStalePrice)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := l.Agent("a1")
	require.NoError(t, err)
	resolved := 0
	for _, e := range p.Errors {
		if e.Resolved {
			resolved++
		}
	}
	assert.Equal(t, 2, resolved)

	n, err = l.ResolveErrors("a1", portfolio.CodeStalePrice)
	require.NoError(t, err)
	assert.Zero(t, n, "already resolved entries are not touched again")
}

func TestConcurrentAgentsDoNotInterfere(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t, Options{})
	const agents = 4
	ids := []string{"a0", "a1", "a2", "a3"}
	for _, id := range ids {
		seedAgent(t, l, id, "100000")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := l.ExecuteTrade(id, buyReq("AAPL", 1, "10")); err != nil {
					t.Error(err)
					return
				}
				if _, err := l.ExecuteTrade(id, sellReq("AAPL", 1, "11")); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		p, err := l.Agent(id)
		require.NoError(t, err)
		assert.Empty(t, p.Positions)
		assertConservation(t, p)
		assert.True(t, p.RealizedPnL.Equal(d("20")), "20 round trips at $1 each")
	}
	assert.Equal(t, int64(agents*40), l.Aggregates().TotalTrades)
}
