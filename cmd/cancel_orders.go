package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/execution"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders [order-id...]",
	Short: "Cancel open orders on the exchange",
	Long: `Cancels the given order IDs on the CLOB, or every open order when no
IDs are passed. Requires live trading credentials.`,
	RunE: runCancelOrders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
}

func runCancelOrders(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

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

	client, err := execution.NewOrderClient(&execution.OrderClientConfig{
		BaseURL:       cfg.ExchangeCLOBURL,
		APIKey:        cfg.APIKey,
		Secret:        cfg.Secret,
		Passphrase:    cfg.Passphrase,
		PrivateKey:    cfg.PrivateKey,
		ProxyAddress:  cfg.ProxyAddress,
		SignatureType: cfg.SignatureType,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create order client: %w", err)
	}

	if len(args) == 0 {
		err = client.CancelAllOrders(ctx)
		if err != nil {
			return fmt.Errorf("cancel all orders: %w", err)
		}
		fmt.Println("All open orders cancelled")
		return nil
	}

	for _, orderID := range args {
		err = client.CancelOrder(ctx, orderID)
		if err != nil {
			fmt.Printf("FAILED %s: %v\n", orderID, err)
			continue
		}
		fmt.Printf("cancelled %s\n", orderID)
	}

	return nil
}
