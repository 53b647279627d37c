package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-sportsbot/internal/app"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading bot",
	Long: `Starts the sports trading bot, which will:
1. Discover upcoming games from the Gamma API
2. Subscribe to their orderbooks via WebSocket
3. Ingest score and sportsbook odds feeds
4. Generate signals, size them through the risk manager and execute

Use --single-market to track only one market for debugging.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("single-market", "s", "", "Track only a single market by slug (for debugging)")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	singleMarket, _ := cmd.Flags().GetString("single-market")

	application, err := app.New(cfg, logger, &app.Options{
		SingleMarket: singleMarket,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
