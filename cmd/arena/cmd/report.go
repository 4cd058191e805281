package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/analytics"
	"github.com/Drix10/hypothesis-arena/arena"
	"github.com/Drix10/hypothesis-arena/ledger"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the leaderboard or one agent's full report",
	Long: `Build performance reports from the stored ledger state.

Without flags the command prints the leaderboard, every agent ranked by
total return. With --agent it prints the full report for one agent,
including FIFO-matched closed positions.

Examples:
  arena report
  arena report --agent momentum-1`,
	RunE: runReport,
}

var (
	reportConfigPath string
	reportAgentID    string
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	reportCmd.Flags().StringVarP(&reportAgentID, "agent", "a", "", "report on a single agent")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(reportConfigPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Logging)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	l := ledger.New(ledger.Options{Store: st, Logger: log})
	restored, err := l.LoadFromStore()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if restored == 0 {
		fmt.Printf("No agents stored in %s\n", cfg.Journal.DBPath)
		return nil
	}

	o := &arena.Orchestrator{Ledger: l, Log: log}
	now := time.Now()

	if reportAgentID != "" {
		rpt, err := o.AgentReport(reportAgentID, now)
		if err != nil {
			return err
		}
		printAgentReport(rpt)
		return nil
	}

	printStandings(o.Standings(now))
	return nil
}

func printStandings(standings []arena.Standing) {
	fmt.Printf("Standings:\n")
	fmt.Printf("  %-4s %-16s %-12s %-10s %12s %9s %8s\n",
		"RANK", "AGENT", "METHODOLOGY", "STATUS", "TOTAL", "RETURN", "TRADES")
	for _, s := range standings {
		r := s.Report
		fmt.Printf("  %-4d %-16s %-12s %-10s %12s %8.2f%% %8d\n",
			s.Rank, r.AgentID, r.Methodology, r.Status,
			r.TotalValue.StringFixed(2), r.TotalReturnPct, r.TradeCount)
	}
}

func printAgentReport(r analytics.Report) {
	fmt.Printf("Agent: %s (%s, %s)\n\n", r.AgentID, r.Methodology, r.Status)

	fmt.Printf("Value:\n")
	fmt.Printf("  Total: $%s\n", r.TotalValue.StringFixed(2))
	fmt.Printf("  Cash: $%s\n", r.Cash.StringFixed(2))
	fmt.Printf("  Positions: $%s (%d open)\n", r.PositionsValue.StringFixed(2), r.OpenPositions)
	fmt.Printf("  Realized P&L: $%s\n", r.RealizedPnL.StringFixed(2))
	fmt.Printf("  Unrealized P&L: $%s\n\n", r.UnrealizedPnL.StringFixed(2))

	fmt.Printf("Performance:\n")
	fmt.Printf("  Total Return: %.2f%%\n", r.TotalReturnPct)
	fmt.Printf("  Win Rate: %.1f%%\n", r.WinRate*100)
	fmt.Printf("  Profit Factor: %.2f\n", r.ProfitFactor)
	if r.Sharpe.Valid {
		fmt.Printf("  Sharpe: %.2f\n", r.Sharpe.Value)
	} else {
		fmt.Printf("  Sharpe: n/a (not enough history)\n")
	}
	fmt.Printf("  Volatility: %.2f%% annualized\n", r.VolatilityPct)
	fmt.Printf("  Max Drawdown: %.2f%%\n", r.MaxDrawdownPct)
	fmt.Printf("  Current Drawdown: %.2f%%\n\n", r.CurrentDrawdownPct)

	fmt.Printf("Trades: %d recorded, %d round trips closed\n", r.TradeCount, len(r.Closed))
	if len(r.Closed) > 0 {
		fmt.Printf("  %-8s %8s %12s %12s %9s %12s\n",
			"TICKER", "SHARES", "COST", "PROCEEDS", "RETURN", "CLOSED")
		for _, c := range r.Closed {
			fmt.Printf("  %-8s %8d %12s %12s %8.2f%% %12s\n",
				c.Ticker, c.Shares,
				c.CostBasis.StringFixed(2), c.Proceeds.StringFixed(2),
				c.ReturnPct, c.ClosedAt.Format("2006-01-02"))
		}
	}
}
