package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "crossvenue-arb",
	Short: "Cross-venue binary market arbitrage engine",
	Long: `Cross-venue arbitrage engine for binary prediction markets.

The engine streams order books from two venues, matches markets that refer
to the same real-world event, and detects opportunities where buying YES on
one venue and NO on the other costs less than the guaranteed 1.00 payout.
Detected opportunities are persisted, pushed to API clients, and optionally
executed as two concurrent legs.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
