package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "signalsd",
	Short: "Quarterly fundamentals signal engine",
	Long: `signalsd evaluates user-authored formulas against company
fundamentals and maintains one trading signal per company.

Usage:
  go run ./cmd/signalsd [command]

Examples:
  go run ./cmd/signalsd serve
  go run ./cmd/signalsd recompute --kind full
  go run ./cmd/signalsd ingest
  go run ./cmd/signalsd status`,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
