package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.String("storage", a.cfg.StorageMode),
		zap.String("initial-balance", a.cfg.InitialBalance.String()),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.ExchangeWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	a.wg.Add(1)
	go a.runDiscoveryService()

	err := a.wsPool.Start()
	if err != nil {
		return fmt.Errorf("start websocket pool: %w", err)
	}

	a.wg.Add(1)
	go a.handleNewMarkets()

	err = a.obManager.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}

	err = a.startFeeds()
	if err != nil {
		return fmt.Errorf("start feeds: %w", err)
	}

	err = a.startStrategies()
	if err != nil {
		return fmt.Errorf("start strategies: %w", err)
	}

	err = a.engine.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	a.wg.Add(1)
	go a.runFeedMonitor()

	if a.walletTracker != nil {
		a.wg.Add(1)
		go a.runWalletTracker()
	}

	return nil
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.walletTracker.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runDiscoveryService() {
	defer a.wg.Done()
	err := a.discovery.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("discovery-service-error", zap.Error(err))
	}
}

func (a *App) startFeeds() error {
	err := a.sportsFeed.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start sports feed: %w", err)
	}

	err = a.oddsFeed.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start odds feed: %w", err)
	}

	return nil
}

func (a *App) startStrategies() error {
	if a.liveArb != nil {
		err := a.liveArb.Start(a.ctx)
		if err != nil {
			return fmt.Errorf("start live arbitrage: %w", err)
		}
	}

	if a.statEdge != nil {
		err := a.statEdge.Start(a.ctx)
		if err != nil {
			return fmt.Errorf("start statistical edge: %w", err)
		}
	}

	return nil
}

// runFeedMonitor periodically flags stale feeds.
func (a *App) runFeedMonitor() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FeedStaleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case now := <-ticker.C:
			a.feedMonitor.CheckAll(now)
		}
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
