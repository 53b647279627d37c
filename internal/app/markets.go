package app

import (
	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"go.uber.org/zap"
)

// handleNewMarkets subscribes to new markets as they are discovered.
func (a *App) handleNewMarkets() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case market, ok := <-a.discovery.NewMarketsChan():
			if !ok {
				return
			}

			a.subscribeToMarket(market)
		}
	}
}

func (a *App) subscribeToMarket(market *types.Market) {
	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")

	if yesToken == nil || noToken == nil {
		a.logger.Warn("market-missing-tokens",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug))
		return
	}

	a.obManager.RegisterMarket(market.Slug, yesToken.TokenID, noToken.TokenID, market.Question)

	err := a.wsPool.Subscribe(a.ctx, []string{yesToken.TokenID, noToken.TokenID})
	if err != nil {
		a.logger.Error("subscribe-failed",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug),
			zap.Error(err))
		a.obManager.UnregisterMarket(market.Slug)
		return
	}

	a.sportsFeed.AddMarket(market.Slug)
	a.oddsFeed.AddMarket(market.Slug)

	a.logger.Info("subscribed-to-market",
		zap.String("slug", market.Slug),
		zap.String("question", market.Question))
}
