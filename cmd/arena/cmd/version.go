package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the arena CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arena version %s\n", version)
		fmt.Println("A paper-trading arena for thesis-driven agents")
		fmt.Println("https://github.com/Drix10/hypothesis-arena")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
