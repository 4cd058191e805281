package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/config"
	"github.com/Drix10/hypothesis-arena/journal"
	"github.com/Drix10/hypothesis-arena/ledger"
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "A paper-trading arena for thesis-driven agents",
	Long: `Arena runs a fleet of paper-trading agents, each with its own methodology
and portfolio, against externally supplied theses and debate outcomes.

It provides tools for:
  - Replaying recorded signal scenarios against a fresh or persisted ledger
  - Ranking agents by performance and inspecting per-agent analytics
  - Exporting and importing complete ledger state as JSON
  - Generating and validating configuration files

Complete documentation is available at https://github.com/Drix10/hypothesis-arena`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. A .env file in the working directory is read first so
// ARENA_* variables can override the config file.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.Execute()
}

// loadConfig reads the config file, falling back to defaults when path is
// empty, and layers the environment overrides on top.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv maps ARENA_DB and ARENA_LOG_LEVEL onto the loaded config.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("ARENA_DB"); v != "" {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = v
	}
	if v := os.Getenv("ARENA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// newLogger builds the handler the config asks for, writing to stderr so
// stdout stays clean for command output.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the durable journal. Commands that read or write stored
// state need the sqlite journal; csv and none keep nothing to query.
func openStore(cfg *config.Config) (journal.Store, error) {
	if cfg.Journal.Type != "sqlite" {
		return nil, fmt.Errorf("journal.type is %q, stored state requires sqlite", cfg.Journal.Type)
	}
	st, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", cfg.Journal.DBPath, err)
	}
	st.SetRetention(cfg.Journal.Retention)
	return st, nil
}

// buildLedger assembles a ledger from the config. The returned closer shuts
// down whatever persistence was opened.
func buildLedger(cfg *config.Config, log *slog.Logger) (*ledger.Ledger, func(), error) {
	var (
		store  journal.Store
		trades journal.TradeLog
	)

	if cfg.Journal.Type == "sqlite" {
		st, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal %s: %w", cfg.Journal.DBPath, err)
		}
		st.SetRetention(cfg.Journal.Retention)
		store = st
	}
	// the CSV trade log is an independent audit trail and may run alongside
	// the sqlite store
	if cfg.Journal.TradesCSV != "" {
		tl, err := journal.NewCSVTradeLog(cfg.Journal.TradesCSV)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, nil, fmt.Errorf("open trade log %s: %w", cfg.Journal.TradesCSV, err)
		}
		trades = tl
	}

	validator, err := cfg.Market.BuildValidator()
	if err != nil {
		return nil, nil, err
	}
	hours, err := cfg.Market.BuildHours()
	if err != nil {
		return nil, nil, err
	}

	l := ledger.New(ledger.Options{
		Store:                store,
		TradeLog:             trades,
		Validator:            validator,
		Hours:                hours,
		EnforceHours:         cfg.Market.EnforceHours,
		Policy:               cfg.Policy.ToPolicy(),
		Thresholds:           cfg.Decision,
		PauseDrawdownPct:     cfg.Risk.PauseDrawdownPct,
		LiquidateDrawdownPct: cfg.Risk.LiquidateDrawdownPct,
		Retention:            cfg.Journal.Retention,
		MaxErrorEntries:      cfg.Journal.Retention.MaxErrorsPerAgent,
		Logger:               log,
	})

	closeAll := func() {
		if trades != nil {
			trades.Close()
		}
		if store != nil {
			store.Close()
		}
	}
	return l, closeAll, nil
}
