package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Drix10/hypothesis-arena/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for the arena.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  arena config init -o my-arena.yaml
  arena config validate -f my-arena.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.

Example:
  arena config init -o arena.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  arena config validate -f arena.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "arena.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  arena run -f %s -s <scenario.yaml>\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Agents: %d\n", len(cfg.Agents))
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	fmt.Printf("  Market hours: %s (enforced: %v)\n", cfg.Market.Hours, cfg.Market.EnforceHours)
	return nil
}
