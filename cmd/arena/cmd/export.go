package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/journal"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored agents to a JSON file",
	Long: `Write every stored agent, with full trade and snapshot history, to a
single JSON document. The export is portable between machines and survives
schema-compatible upgrades.

Example:
  arena export -o backups/arena-2025-06-02.json`,
	RunE: runExport,
}

var (
	exportConfigPath string
	exportOutput     string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "arena-export.json", "output file path")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(exportConfigPath)
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
		return fmt.Errorf("nothing to export, %s holds no agents", cfg.Journal.DBPath)
	}

	var agg json.RawMessage
	if raw, err := st.GetMeta(journal.MetaAggregates); err == nil && raw != "" {
		agg = json.RawMessage(raw)
	}

	if err := journal.ExportState(exportOutput, agents, agg, time.Now()); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Printf("✓ Exported %d agents to %s\n", len(agents), exportOutput)
	return nil
}
