package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "sportsbot",
	Short: "Sports prediction market trading bot",
	Long: `Automated trading bot for binary sports prediction markets.

The bot discovers upcoming games from the Gamma API, subscribes to their
orderbooks via WebSocket, ingests live score and sportsbook odds feeds,
and runs market making, live arbitrage and statistical edge strategies
through a central risk manager. Trades execute in paper mode against the
tracked books or live against the CLOB.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
