package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/polymarket-sportsbot/internal/discovery"
	"github.com/mselser95/polymarket-sportsbot/internal/engine"
	"github.com/mselser95/polymarket-sportsbot/internal/eventbus"
	"github.com/mselser95/polymarket-sportsbot/internal/execution"
	"github.com/mselser95/polymarket-sportsbot/internal/feeds"
	"github.com/mselser95/polymarket-sportsbot/internal/markets"
	"github.com/mselser95/polymarket-sportsbot/internal/orderbook"
	"github.com/mselser95/polymarket-sportsbot/internal/risk"
	"github.com/mselser95/polymarket-sportsbot/internal/state"
	"github.com/mselser95/polymarket-sportsbot/internal/storage"
	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
	"github.com/mselser95/polymarket-sportsbot/pkg/cache"
	"github.com/mselser95/polymarket-sportsbot/pkg/config"
	"github.com/mselser95/polymarket-sportsbot/pkg/healthprobe"
	"github.com/mselser95/polymarket-sportsbot/pkg/httpserver"
	"github.com/mselser95/polymarket-sportsbot/pkg/wallet"
	"github.com/mselser95/polymarket-sportsbot/pkg/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}

	appCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	a.stateManager, err = state.New(&state.Config{
		Logger:         logger,
		InitialBalance: cfg.InitialBalance,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup state manager: %w", err)
	}

	a.tracker, err = orderbook.NewTracker(&orderbook.TrackerConfig{Logger: logger})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup orderbook tracker: %w", err)
	}

	a.wsPool = setupWebSocketPool(cfg, logger)

	a.obManager, err = orderbook.New(&orderbook.Config{
		Logger:         logger,
		Tracker:        a.tracker,
		MessageChannel: a.wsPool.MessageChan(),
		UpdateBuffer:   cfg.WSMessageBufferSize,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup orderbook manager: %w", err)
	}

	a.discovery = setupDiscoveryService(cfg, logger, appCache, opts)

	a.bus, err = eventbus.New(&eventbus.Config{
		Logger:     logger,
		BufferSize: cfg.EventBusBufferSize,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup event bus: %w", err)
	}

	a.feedMonitor = feeds.NewMonitor(cfg.FeedStaleAfter, logger)

	if err := a.setupFeeds(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup feeds: %w", err)
	}

	strategies, err := a.setupStrategies()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup strategies: %w", err)
	}

	a.riskManager, err = setupRiskManager(cfg, logger, a.stateManager)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup risk manager: %w", err)
	}

	a.executor, err = setupExecutor(cfg, logger, a.stateManager, a.tracker, appCache)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	if cfg.ExecutionMode == "live" {
		a.walletTracker, err = setupWalletTracker(cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup wallet tracker: %w", err)
		}
	}

	a.storage, err = setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	a.engine, err = engine.New(&engine.Config{
		Logger:       logger,
		State:        a.stateManager,
		Risk:         a.riskManager,
		Executor:     a.executor,
		Storage:      a.storage,
		Strategies:   strategies,
		MarketMaker:  a.marketMaker,
		Updates:      a.obManager.UpdateChan(),
		TickInterval: cfg.TickInterval,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup engine: %w", err)
	}

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		State:         a.stateManager,
		Tracker:       a.tracker,
	})

	return a, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupWebSocketPool(cfg *config.Config, logger *zap.Logger) *websocket.Pool {
	return websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		WSUrl:                 cfg.ExchangeWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupDiscoveryService(cfg *config.Config, logger *zap.Logger, appCache cache.Cache, opts *Options) *discovery.Service {
	client := discovery.NewClient(cfg.ExchangeGammaURL, logger)
	return discovery.New(&discovery.Config{
		Client:       client,
		Cache:        appCache,
		PollInterval: cfg.DiscoveryPollInterval,
		MarketLimit:  cfg.DiscoveryMarketLimit,
		Leagues:      cfg.DiscoveryLeagues,
		AllowInGame:  cfg.AllowInGameTrading,
		Logger:       logger,
		SingleMarket: opts.SingleMarket,
	})
}

func (a *App) setupFeeds() error {
	if !a.cfg.MockFeeds {
		a.logger.Warn("live-feeds-not-configured-falling-back-to-mock")
	}

	var err error
	a.sportsFeed, err = feeds.NewMockSportsFeed(&feeds.MockSportsFeedConfig{
		Bus:      a.bus,
		Monitor:  a.feedMonitor,
		Logger:   a.logger,
		Interval: a.cfg.SportsFeedInterval,
	})
	if err != nil {
		return fmt.Errorf("create sports feed: %w", err)
	}

	a.oddsFeed, err = feeds.NewMockOddsFeed(&feeds.MockOddsFeedConfig{
		Bus:      a.bus,
		Monitor:  a.feedMonitor,
		Logger:   a.logger,
		Interval: a.cfg.OddsFeedInterval,
	})
	if err != nil {
		return fmt.Errorf("create odds feed: %w", err)
	}

	return nil
}

func (a *App) setupStrategies() ([]strategy.Strategy, error) {
	var strategies []strategy.Strategy

	if a.cfg.MarketMakerEnabled {
		mm, err := strategy.NewMarketMaker(&strategy.MarketMakerConfig{
			Logger:           a.logger,
			View:             a.stateManager,
			Spread:           a.cfg.MMSpread,
			OrderSize:        a.cfg.MMOrderSize,
			MaxInventory:     decimal.NewFromInt(a.cfg.MMMaxInventory),
			InventorySkew:    a.cfg.MMInventorySkew,
			MinSpreadToQuote: a.cfg.MMMinSpreadToQuote,
			StopLossPct:      a.cfg.MMStopLossPct,
			MaxHoldTime:      a.cfg.MMMaxHoldTime,
		})
		if err != nil {
			return nil, fmt.Errorf("create market maker: %w", err)
		}
		a.marketMaker = mm
		strategies = append(strategies, mm)
	}

	if a.cfg.LiveArbEnabled {
		la, err := strategy.NewLiveArbitrage(&strategy.LiveArbitrageConfig{
			Logger:       a.logger,
			View:         a.stateManager,
			Bus:          a.bus,
			MinEdge:      a.cfg.LiveArbMinEdge,
			OrderSize:    a.cfg.LiveArbOrderSize,
			LeadMult:     a.cfg.LiveArbLeadMult,
			MaxProbShift: a.cfg.LiveArbMaxProbShift,
			Cooldown:     a.cfg.LiveArbCooldown,
		})
		if err != nil {
			return nil, fmt.Errorf("create live arbitrage: %w", err)
		}
		a.liveArb = la
		strategies = append(strategies, la)
	}

	if a.cfg.StatEdgeEnabled {
		se, err := strategy.NewStatisticalEdge(&strategy.StatisticalEdgeConfig{
			Logger:    a.logger,
			View:      a.stateManager,
			Bus:       a.bus,
			MinEdge:   a.cfg.StatEdgeMinEdge,
			OrderSize: a.cfg.StatEdgeOrderSize,
			Cooldown:  a.cfg.StatEdgeCooldown,
		})
		if err != nil {
			return nil, fmt.Errorf("create statistical edge: %w", err)
		}
		a.statEdge = se
		strategies = append(strategies, se)
	}

	if len(strategies) == 0 {
		return nil, fmt.Errorf("no strategy enabled")
	}
	return strategies, nil
}

func setupRiskManager(cfg *config.Config, logger *zap.Logger, st *state.Manager) (*risk.Manager, error) {
	// Config expresses groups as slug-substring -> group; the monitor
	// wants group -> members.
	groups := make(map[string][]string)
	for substring, group := range cfg.CorrelationGroups {
		groups[group] = append(groups[group], substring)
	}

	return risk.New(&risk.ManagerConfig{
		Logger:                logger,
		State:                 st,
		KellyFraction:         cfg.KellyFraction,
		MinEdge:               cfg.RiskMinEdge,
		MaxPositionPct:        cfg.MaxPositionPct,
		MaxPerMarket:          cfg.MaxMarketExposure,
		MaxPortfolio:          cfg.MaxPortfolioExposure,
		MaxPortfolioPct:       cfg.MaxPortfolioPct,
		MaxGroup:              cfg.MaxGroupExposure,
		MaxPositions:          cfg.MaxConcurrentMarkets,
		CorrelationGroups:     groups,
		DailyLossLimit:        cfg.DailyLossLimit,
		MaxDrawdownPct:        cfg.MaxDrawdownPct,
		MaxPnLDrawdownForBuys: cfg.MaxPnLDrawdownForBuys,
		MinTradeSize:          cfg.MinTradeSize,
	}, time.Now())
}

func setupExecutor(cfg *config.Config, logger *zap.Logger, st *state.Manager, tracker *orderbook.Tracker, appCache cache.Cache) (execution.Executor, error) {
	if cfg.ExecutionMode == "live" {
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
			return nil, fmt.Errorf("create order client: %w", err)
		}

		metadata := markets.NewCachedMetadataClient(
			markets.NewMetadataClient(cfg.ExchangeCLOBURL, logger), appCache)

		return execution.NewLiveExecutor(&execution.LiveConfig{
			Client:              client,
			State:               st,
			Tracker:             tracker,
			Metadata:            metadata,
			Logger:              logger,
			TakerFeeRate:        cfg.TakerFeeRate,
			LiquidationDiscount: cfg.LiquidationDiscount,
			ReconcileInterval:   cfg.ReconcileInterval,
		})
	}

	return execution.NewPaperExecutor(&execution.PaperConfig{
		State:               st,
		Tracker:             tracker,
		Logger:              logger,
		TakerFeeRate:        cfg.TakerFeeRate,
		MakerFeeRate:        cfg.MakerFeeRate,
		MakerFillFraction:   cfg.MakerFillFraction,
		LiquidationDiscount: cfg.LiquidationDiscount,
	})
}

func setupWalletTracker(cfg *config.Config, logger *zap.Logger) (*wallet.Tracker, error) {
	address, err := fundingAddress(cfg)
	if err != nil {
		return nil, err
	}

	return wallet.New(&wallet.Config{
		RPCEndpoint:  cfg.PolygonRPCURL,
		Address:      address,
		PollInterval: cfg.WalletPollInterval,
		MinGasPOL:    cfg.MinGasPOL,
		Logger:       logger,
	})
}

// fundingAddress is the wallet backing live trades: the proxy when one
// is configured, the EOA derived from the trading key otherwise.
func fundingAddress(cfg *config.Config) (common.Address, error) {
	if cfg.ProxyAddress != "" {
		if !common.IsHexAddress(cfg.ProxyAddress) {
			return common.Address{}, fmt.Errorf("invalid EXCHANGE_PROXY_ADDRESS %q", cfg.ProxyAddress)
		}
		return common.HexToAddress(cfg.ProxyAddress), nil
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pg, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pg, nil
	}

	return storage.NewConsoleStorage(logger), nil
}
