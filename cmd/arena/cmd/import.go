package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/journal"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import agents from a JSON export",
	Long: `Load agents from an export file into the journal. Every agent is
validated before anything is written; one corrupt agent fails the whole
import. An agent already in the journal is overwritten by its imported
state.

Example:
  arena import -i backups/arena-2025-06-02.json`,
	RunE: runImport,
}

var (
	importConfigPath string
	importInput      string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "export file to import (required)")
	importCmd.MarkFlagRequired("input")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(importConfigPath)
	if err != nil {
		return err
	}

	doc, err := journal.ReadExport(importInput)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, p := range doc.Agents {
		if err := st.SaveAgent(p); err != nil {
			return fmt.Errorf("save agent %s: %w", p.AgentID, err)
		}
	}
	if len(doc.Aggregates) > 0 {
		if err := st.PutMeta(journal.MetaAggregates, string(doc.Aggregates)); err != nil {
			return fmt.Errorf("save aggregates: %w", err)
		}
	}

	fmt.Printf("✓ Imported %d agents into %s\n", len(doc.Agents), cfg.Journal.DBPath)
	return nil
}
