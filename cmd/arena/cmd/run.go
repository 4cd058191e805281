package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/arena"
	"github.com/Drix10/hypothesis-arena/ledger"
	"github.com/Drix10/hypothesis-arena/replay"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a recorded scenario against the ledger",
	Long: `Run every cycle of a scenario file against the configured agents.

Agents stored in the journal are restored first; agents named in the config
that are not in the journal are seeded fresh. Scenario files are YAML and may
be xz-compressed.

Examples:
  arena run --scenario scenarios/june.yaml
  arena run -f arena.yaml -s scenarios/june.yaml.xz`,
	RunE: runRun,
}

var (
	runConfigPath   string
	runScenarioPath string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	runCmd.Flags().StringVarP(&runScenarioPath, "scenario", "s", "", "path to scenario file (required)")
	runCmd.MarkFlagRequired("scenario")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Logging)

	l, closeJournal, err := buildLedger(cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	restored, err := l.LoadFromStore()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if restored > 0 {
		fmt.Printf("Restored %d agents from %s\n", restored, cfg.Journal.DBPath)
	}

	seeded := 0
	for _, a := range cfg.Agents {
		_, err := l.AddAgent(a.ID, a.Methodology, decimal.NewFromFloat(a.InitialCash))
		if errors.Is(err, ledger.ErrAgentExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", a.ID, err)
		}
		seeded++
	}
	if seeded > 0 {
		fmt.Printf("Seeded %d fresh agents\n", seeded)
	}

	sc, err := replay.Load(runScenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	start, end := sc.Span()
	fmt.Printf("Scenario: %s (%d cycles, %s to %s)\n\n",
		sc.Name, len(sc.Cycles),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &replay.Runner{Ledger: l, Log: log}
	res, err := r.Run(ctx, sc)
	if err != nil {
		return fmt.Errorf("run scenario: %w", err)
	}

	fmt.Printf("Results:\n")
	fmt.Printf("  Cycles: %d\n", res.Cycles)
	fmt.Printf("  Quotes applied: %d\n", res.QuotesApplied)
	fmt.Printf("  Trades executed: %d\n", res.TradesExecuted)
	fmt.Printf("  Signals held: %d\n", res.SignalsSkipped)
	fmt.Printf("  Trades blocked: %d\n", res.TradesBlocked)
	fmt.Printf("  Corporate actions: %d\n", res.ActionsApplied)
	fmt.Printf("  Snapshots: %d\n\n", res.SnapshotsTaken)

	o := &arena.Orchestrator{Ledger: l, Log: log}
	printStandings(o.Standings(time.Now()))

	if cfg.Journal.Type == "sqlite" {
		fmt.Printf("\nState saved to: %s\n", cfg.Journal.DBPath)
	}
	return nil
}
