package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel all open orders before tearing anything down so nothing
	// rests on the exchange unattended.
	cancelCtx, cancelDone := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.executor.CancelAll(cancelCtx)
	cancelDone()
	if err != nil {
		a.logger.Error("cancel-all-on-shutdown-failed", zap.Error(err))
	}

	// Signal all components.
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	err = a.engine.Close()
	if err != nil {
		a.logger.Error("engine-close-error", zap.Error(err))
	}

	err = a.executor.Close()
	if err != nil {
		a.logger.Error("executor-close-error", zap.Error(err))
	}

	if a.liveArb != nil {
		if err := a.liveArb.Close(); err != nil {
			a.logger.Error("live-arbitrage-close-error", zap.Error(err))
		}
	}
	if a.statEdge != nil {
		if err := a.statEdge.Close(); err != nil {
			a.logger.Error("statistical-edge-close-error", zap.Error(err))
		}
	}

	err = a.sportsFeed.Close()
	if err != nil {
		a.logger.Error("sports-feed-close-error", zap.Error(err))
	}
	err = a.oddsFeed.Close()
	if err != nil {
		a.logger.Error("odds-feed-close-error", zap.Error(err))
	}

	err = a.bus.Close()
	if err != nil {
		a.logger.Error("event-bus-close-error", zap.Error(err))
	}

	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	err = a.obManager.Close()
	if err != nil {
		a.logger.Error("orderbook-manager-close-error", zap.Error(err))
	}

	err = a.wsPool.Close()
	if err != nil {
		a.logger.Error("websocket-pool-close-error", zap.Error(err))
	}

	a.wg.Wait()

	stats := a.executor.Stats()
	a.logger.Info("session-execution-summary",
		zap.Int64("orders-placed", stats.OrdersPlaced),
		zap.Int64("orders-cancelled", stats.OrdersCancelled),
		zap.Int64("orders-rejected", stats.OrdersRejected),
		zap.Int64("fills", stats.Fills),
		zap.String("volume", stats.Volume.StringFixed(2)),
		zap.String("fees-paid", stats.FeesPaid.StringFixed(4)))

	a.logger.Info("application-shutdown-complete")

	return nil
}
