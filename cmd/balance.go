package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/mselser95/polymarket-sportsbot/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show on-chain wallet balances",
	Long: `Shows the POL and USDC balances of the trading wallet on Polygon,
plus the USDC allowance granted to the exchange. The wallet address is
derived from EXCHANGE_PRIVATE_KEY, or EXCHANGE_PROXY_ADDRESS when set.`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	address, err := tradingAddress()
	if err != nil {
		return err
	}

	rpcURL := os.Getenv("POLYGON_RPC_URL")
	if rpcURL == "" {
		rpcURL = "https://polygon-rpc.com"
	}

	client, err := wallet.NewClient(rpcURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	balances, err := client.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	fmt.Printf("Address:        %s\n", address.Hex())
	fmt.Printf("POL:            %s\n", formatUnits(balances.POL, 18))
	fmt.Printf("USDC:           %s\n", formatUnits(balances.USDC, 6))
	fmt.Printf("USDC allowance: %s\n", formatUnits(balances.USDCAllowance, 6))

	return nil
}

func tradingAddress() (common.Address, error) {
	if proxy := os.Getenv("EXCHANGE_PROXY_ADDRESS"); proxy != "" {
		if !common.IsHexAddress(proxy) {
			return common.Address{}, fmt.Errorf("invalid EXCHANGE_PROXY_ADDRESS %q", proxy)
		}
		return common.HexToAddress(proxy), nil
	}

	keyHex := os.Getenv("EXCHANGE_PRIVATE_KEY")
	if keyHex == "" {
		return common.Address{}, fmt.Errorf("EXCHANGE_PRIVATE_KEY or EXCHANGE_PROXY_ADDRESS must be set")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("derive public key")
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}

func formatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Div(amount, divisor)
	frac := new(big.Int).Mod(amount, divisor)

	return fmt.Sprintf("%s.%0*d", whole.String(), decimals, frac)
}
