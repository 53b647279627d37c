package app

import (
	"context"
	"sync"

	"github.com/mselser95/polymarket-sportsbot/internal/discovery"
	"github.com/mselser95/polymarket-sportsbot/internal/engine"
	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"github.com/mselser95/polymarket-sportsbot/internal/execution"
	"github.com/mselser95/polymarket-sportsbot/internal/feeds"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/risk"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/storage"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/mselser95/polymarket-sportsbot/pkg/healthprobe"
	"github.com/mselser95/polymarket-sportsbot/pkg/httpserver"
	"github.com/mselser95/polymarket-sportsbot/pkg/wallet"
	"github.com/mselser95/polymarket-sportsbot/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator. It owns every component
// and wires market data, feeds, strategies, risk and execution into
// the trading engine.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	stateManager *state.Manager
	tracker      *orderbook.Tracker
	wsPool       *websocket.Pool
	obManager    *orderbook.Manager
	discovery    *discovery.Service

	bus         *eventbus.Bus
	feedMonitor *feeds.Monitor
	sportsFeed  *feeds.MockSportsFeed
	oddsFeed    *feeds.MockOddsFeed

	marketMaker *strategy.MarketMaker
	liveArb     *strategy.LiveArbitrage
	statEdge    *strategy.StatisticalEdge

	riskManager *risk.Manager
	executor    execution.Executor
	storage     storage.Storage
	engine      *engine.Engine

	// Live mode only: polls wallet funding gauges on-chain.
	walletTracker *wallet.Tracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // For debugging: slug of single market to track
}
