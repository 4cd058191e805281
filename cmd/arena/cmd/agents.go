package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents stored in the journal",
	Long: `Print one line per stored agent with its live balances and counters.

Example:
  arena agents -f arena.yaml`,
	RunE: runAgents,
}

var agentsConfigPath string

func init() {
	rootCmd.AddCommand(agentsCmd)

	agentsCmd.Flags().StringVarP(&agentsConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(agentsConfigPath)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	agents, err := st.LoadAll()
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Printf("No agents stored in %s\n", cfg.Journal.DBPath)
		return nil
	}

	fmt.Printf("%-16s %-12s %-10s %12s %12s %9s %7s %7s\n",
		"AGENT", "METHODOLOGY", "STATUS", "CASH", "TOTAL", "RETURN", "TRADES", "W/L")
	for _, p := range agents {
		fmt.Printf("%-16s %-12s %-10s %12s %12s %8.2f%% %7d %3d/%d\n",
			p.AgentID, p.Methodology, p.Status,
			p.CurrentCash.StringFixed(2), p.TotalValue.StringFixed(2),
			p.TotalReturnPct, len(p.Trades), p.Wins, p.Losses)
	}
	return nil
}
