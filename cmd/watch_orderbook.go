package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-sportsbot/internal/discovery"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/mselser95/polymarket-sportsbot/pkg/websocket"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook <market-slug>",
	Short: "Watch orderbook updates for a specific market",
	Long: `Connects to the exchange WebSocket and displays real-time orderbook
updates for both outcome tokens of a market, including the combined
YES+NO ask price that signals an internal arbitrage when below 1.

Example:
  sportsbot watch-orderbook nba-lal-bos-2026-01-25`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchOrderbook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
	watchOrderbookCmd.Flags().BoolP("json", "j", false, "Output raw JSON messages")
}

func runWatchOrderbook(cmd *cobra.Command, args []string) error {
	marketSlug := args[0]

	ctx, cancel := context.WithCancel(context.Background())
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

	jsonOutput, _ := cmd.Flags().GetBool("json")

	client := discovery.NewClient(cfg.ExchangeGammaURL, logger)
	market, err := client.FetchMarketBySlug(ctx, marketSlug)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")
	if yesToken == nil || noToken == nil {
		return fmt.Errorf("market missing YES or NO token")
	}

	fmt.Printf("Market: %s\n", market.Question)
	fmt.Printf("Slug:   %s\n", market.Slug)
	fmt.Printf("YES:    %s\n", yesToken.TokenID)
	fmt.Printf("NO:     %s\n\n", noToken.TokenID)

	wsManager := websocket.New(websocket.Config{
		URL:                   cfg.ExchangeWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})

	if err := wsManager.Start(); err != nil {
		return fmt.Errorf("start websocket: %w", err)
	}
	defer wsManager.Close()

	if err := wsManager.Subscribe(ctx, []string{yesToken.TokenID, noToken.TokenID}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Println("Subscribed! Watching for orderbook updates...")

	tracker, err := orderbook.NewTracker(&orderbook.TrackerConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	watcher := &bookWatcher{
		tracker:    tracker,
		marketSlug: marketSlug,
		yesTokenID: yesToken.TokenID,
		noTokenID:  noToken.TokenID,
	}

	msgChan := wsManager.MessageChan()
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case msg, ok := <-msgChan:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if jsonOutput {
				jsonBytes, _ := json.MarshalIndent(msg, "", "  ")
				fmt.Println(string(jsonBytes))
				continue
			}
			watcher.handle(w, msg)
		}
	}
}

type bookWatcher struct {
	tracker    *orderbook.Tracker
	marketSlug string
	yesTokenID string
	noTokenID  string
}

func (bw *bookWatcher) handle(w *tabwriter.Writer, msg *types.OrderbookMessage) {
	timestamp := time.Unix(msg.Timestamp/1000, 0).Format("15:04:05")

	switch msg.EventType {
	case "book":
		bids := parseWatchLevels(msg.Bids)
		asks := parseWatchLevels(msg.Asks)
		bw.tracker.ApplySnapshot(msg.AssetID, bw.marketSlug, bids, asks, msg.Timestamp, time.Now())
		bw.printSummary(w, timestamp)
	case "price_change":
		for _, change := range msg.PriceChanges {
			fmt.Fprintf(w, "[%s] %s\tprice_change\t%s %s@%s\tBest: %s/%s\n",
				timestamp, bw.outcome(change.AssetID),
				change.Side, change.Size, change.Price, change.BestBid, change.BestAsk)
		}
	default:
		fmt.Fprintf(w, "[%s] %s\t%s\n", timestamp, bw.outcome(msg.AssetID), msg.EventType)
	}

	w.Flush()
}

// printSummary shows both sides of the market plus the combined ask
// cost of buying YES and NO, which under 1.00 means free money.
func (bw *bookWatcher) printSummary(w *tabwriter.Writer, timestamp string) {
	for _, tok := range []struct {
		name string
		id   string
	}{{"YES", bw.yesTokenID}, {"NO", bw.noTokenID}} {
		bid, haveBid := bw.tracker.BestBid(tok.id)
		ask, haveAsk := bw.tracker.BestAsk(tok.id)

		line := fmt.Sprintf("[%s] %s\tbook", timestamp, tok.name)
		if haveBid {
			line += fmt.Sprintf("\tBid: %s@%s", bid.Price, bid.Size)
		} else {
			line += "\tBid: -"
		}
		if haveAsk {
			line += fmt.Sprintf("\tAsk: %s@%s", ask.Price, ask.Size)
		} else {
			line += "\tAsk: -"
		}
		if mid, ok := bw.tracker.MidPrice(tok.id); ok {
			line += fmt.Sprintf("\tMid: %s", mid.StringFixed(3))
		}
		fmt.Fprintln(w, line)
	}

	yesAsk, okYes := bw.tracker.BestAsk(bw.yesTokenID)
	noAsk, okNo := bw.tracker.BestAsk(bw.noTokenID)
	if okYes && okNo {
		sum := yesAsk.Price.Add(noAsk.Price)
		marker := ""
		if sum.LessThan(decimal.NewFromInt(1)) {
			marker = "\t<-- ARB"
		}
		fmt.Fprintf(w, "[%s] YES+NO ask sum: %s%s\n", timestamp, sum.StringFixed(3), marker)
	}
}

func (bw *bookWatcher) outcome(assetID string) string {
	switch assetID {
	case bw.yesTokenID:
		return "YES"
	case bw.noTokenID:
		return "NO"
	}
	return "UNKNOWN"
}

func parseWatchLevels(levels []types.PriceLevel) []types.BookLevel {
	parsed := make([]types.BookLevel, 0, len(levels))
	for _, lvl := range levels {
		bl, err := types.ParseLevel(lvl)
		if err != nil {
			continue
		}
		parsed = append(parsed, bl)
	}
	return parsed
}
