package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-sportsbot/internal/discovery"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List active markets and whether the bot would trade them",
	Long: `Fetches active markets from the Gamma API and shows, for each, the
league parsed from the slug and whether it passes the tradeability
gates (configured leagues, slug date not in the past).`,
	RunE: runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 50, "Maximum number of markets to fetch")
}

func runListMarkets(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
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

	limit, _ := cmd.Flags().GetInt("limit")

	client := discovery.NewClient(cfg.ExchangeGammaURL, logger)
	resp, err := client.FetchActiveMarkets(ctx, limit, 0, "volume24hr")
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	leagues := make(map[string]struct{}, len(cfg.DiscoveryLeagues))
	for _, l := range cfg.DiscoveryLeagues {
		leagues[strings.ToLower(l)] = struct{}{}
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tLEAGUE\tTOKENS\tTRADEABLE\tQUESTION")

	tradeable := 0
	for i := range resp.Data {
		market := &resp.Data[i]

		league := market.Slug
		if idx := strings.IndexByte(market.Slug, '-'); idx > 0 {
			league = market.Slug[:idx]
		}

		hasTokens := market.GetTokenByOutcome("YES") != nil && market.GetTokenByOutcome("NO") != nil

		_, leagueOK := leagues[strings.ToLower(league)]
		if len(leagues) == 0 {
			leagueOK = true
		}

		ok := hasTokens && leagueOK && types.IsTradeableSlug(market.Slug, now, cfg.AllowInGameTrading)
		if ok {
			tradeable++
		}

		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%.60s\n", market.Slug, league, hasTokens, ok, market.Question)
	}
	w.Flush()

	fmt.Printf("\n%d of %d markets tradeable\n", tradeable, len(resp.Data))
	return nil
}
