package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Exchange endpoints
	ExchangeWSURL    string
	ExchangeGammaURL string
	ExchangeCLOBURL  string

	// Live trading credentials
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	ProxyAddress  string
	SignatureType int

	// Wallet monitoring (live mode)
	PolygonRPCURL      string
	WalletPollInterval time.Duration
	MinGasPOL          float64

	// Market Discovery
	DiscoveryPollInterval time.Duration
	DiscoveryMarketLimit  int
	DiscoveryLeagues      []string
	AllowInGameTrading    bool

	// WebSocket
	WSPoolSize              int
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Orderbook
	BookMaxAge time.Duration

	// Event bus
	EventBusBufferSize int

	// Engine
	TickInterval time.Duration

	// Strategy: market maker
	MarketMakerEnabled    bool
	MMSpread              decimal.Decimal
	MMOrderSize           decimal.Decimal
	MMMaxInventory        int64
	MMInventorySkew       decimal.Decimal
	MMStopLossPct         decimal.Decimal
	MMMaxHoldTime         time.Duration
	MMMinSpreadToQuote    decimal.Decimal

	// Strategy: live arbitrage
	LiveArbEnabled       bool
	LiveArbMinEdge       decimal.Decimal
	LiveArbOrderSize     decimal.Decimal
	LiveArbLeadMult      decimal.Decimal
	LiveArbMaxProbShift  decimal.Decimal
	LiveArbCooldown      time.Duration

	// Strategy: statistical edge
	StatEdgeEnabled   bool
	StatEdgeMinEdge   decimal.Decimal
	StatEdgeOrderSize decimal.Decimal
	StatEdgeCooldown  time.Duration

	// Risk
	KellyFraction         decimal.Decimal
	RiskMinEdge           decimal.Decimal
	MaxPositionPct        decimal.Decimal
	MaxMarketExposure     decimal.Decimal
	MaxPortfolioExposure  decimal.Decimal
	MaxPortfolioPct       decimal.Decimal
	MaxGroupExposure      decimal.Decimal
	MaxConcurrentMarkets  int
	CorrelationGroups     map[string]string // slug substring -> group name
	DailyLossLimit        decimal.Decimal
	MaxDrawdownPct        decimal.Decimal
	MaxPnLDrawdownForBuys decimal.Decimal
	MinTradeSize          decimal.Decimal

	// Execution
	ExecutionMode       string // "paper" or "live"
	InitialBalance      decimal.Decimal
	TakerFeeRate        decimal.Decimal
	MakerFeeRate        decimal.Decimal
	MakerFillFraction   decimal.Decimal
	LiquidationDiscount decimal.Decimal
	ReconcileInterval   time.Duration

	// Feeds
	SportsFeedInterval time.Duration
	OddsFeedInterval   time.Duration
	FeedStaleAfter     time.Duration
	MockFeeds          bool

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Exchange endpoint defaults
		ExchangeWSURL:    getEnvOrDefault("EXCHANGE_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		ExchangeGammaURL: getEnvOrDefault("EXCHANGE_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		ExchangeCLOBURL:  getEnvOrDefault("EXCHANGE_CLOB_URL", "https://clob.polymarket.com"),

		// Live credentials (only required in live mode)
		APIKey:        os.Getenv("EXCHANGE_API_KEY"),
		Secret:        os.Getenv("EXCHANGE_SECRET"),
		Passphrase:    os.Getenv("EXCHANGE_PASSPHRASE"),
		PrivateKey:    os.Getenv("EXCHANGE_PRIVATE_KEY"),
		ProxyAddress:  os.Getenv("EXCHANGE_PROXY_ADDRESS"),
		SignatureType: getIntOrDefault("EXCHANGE_SIGNATURE_TYPE", 0),

		// Wallet monitoring defaults
		PolygonRPCURL:      getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		WalletPollInterval: getDurationOrDefault("WALLET_POLL_INTERVAL", 60*time.Second),
		MinGasPOL:          getFloat64OrDefault("WALLET_MIN_GAS_POL", 0.1),

		// Market Discovery defaults
		DiscoveryPollInterval: getDurationOrDefault("DISCOVERY_POLL_INTERVAL", 30*time.Second),
		DiscoveryMarketLimit:  getIntOrDefault("DISCOVERY_MARKET_LIMIT", 50),
		DiscoveryLeagues:      getSliceOrDefault("DISCOVERY_LEAGUES", []string{"nba", "nfl", "mlb", "nhl"}),
		AllowInGameTrading:    getBoolOrDefault("ALLOW_IN_GAME_TRADING", true),

		// WebSocket defaults
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 2),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Orderbook defaults
		BookMaxAge: getDurationOrDefault("BOOK_MAX_AGE", 30*time.Second),

		// Event bus defaults
		EventBusBufferSize: getIntOrDefault("EVENT_BUS_BUFFER_SIZE", 256),

		// Engine defaults
		TickInterval: getDurationOrDefault("TICK_INTERVAL", 1*time.Second),

		// Market maker defaults
		MarketMakerEnabled: getBoolOrDefault("MM_ENABLED", true),
		MMSpread:           getDecimalOrDefault("MM_SPREAD", "0.02"),
		MMOrderSize:        getDecimalOrDefault("MM_ORDER_SIZE", "10.00"),
		MMMaxInventory:     int64(getIntOrDefault("MM_MAX_INVENTORY", 100)),
		MMInventorySkew:    getDecimalOrDefault("MM_INVENTORY_SKEW", "0.005"),
		MMStopLossPct:      getDecimalOrDefault("MM_STOP_LOSS_PCT", "0.15"),
		MMMaxHoldTime:      getDurationOrDefault("MM_MAX_HOLD_TIME", 30*time.Minute),
		MMMinSpreadToQuote: getDecimalOrDefault("MM_MIN_SPREAD_TO_QUOTE", "0.01"),

		// Live arbitrage defaults
		LiveArbEnabled:      getBoolOrDefault("LIVE_ARB_ENABLED", true),
		LiveArbMinEdge:      getDecimalOrDefault("LIVE_ARB_MIN_EDGE", "0.03"),
		LiveArbOrderSize:    getDecimalOrDefault("LIVE_ARB_ORDER_SIZE", "10.00"),
		LiveArbLeadMult:     getDecimalOrDefault("LIVE_ARB_LEAD_MULTIPLIER", "0.02"),
		LiveArbMaxProbShift: getDecimalOrDefault("LIVE_ARB_MAX_PROB_SHIFT", "0.25"),
		LiveArbCooldown:     getDurationOrDefault("LIVE_ARB_COOLDOWN", 5*time.Second),

		// Statistical edge defaults
		StatEdgeEnabled:   getBoolOrDefault("STAT_EDGE_ENABLED", true),
		StatEdgeMinEdge:   getDecimalOrDefault("STAT_EDGE_MIN_EDGE", "0.02"),
		StatEdgeOrderSize: getDecimalOrDefault("STAT_EDGE_ORDER_SIZE", "10.00"),
		StatEdgeCooldown:  getDurationOrDefault("STAT_EDGE_COOLDOWN", 10*time.Second),

		// Risk defaults
		KellyFraction:        getDecimalOrDefault("RISK_KELLY_FRACTION", "0.25"),
		RiskMinEdge:          getDecimalOrDefault("RISK_MIN_EDGE", "0.02"),
		MaxPositionPct:       getDecimalOrDefault("RISK_MAX_POSITION_PCT", "0.05"),
		MaxMarketExposure:    getDecimalOrDefault("RISK_MAX_MARKET_EXPOSURE", "100.00"),
		MaxPortfolioExposure: getDecimalOrDefault("RISK_MAX_PORTFOLIO_EXPOSURE", "500.00"),
		MaxPortfolioPct:      getDecimalOrDefault("RISK_MAX_PORTFOLIO_PCT", "0.80"),
		MaxGroupExposure:     getDecimalOrDefault("RISK_MAX_GROUP_EXPOSURE", "200.00"),
		MaxConcurrentMarkets: getIntOrDefault("RISK_MAX_CONCURRENT_MARKETS", 10),
		CorrelationGroups:    getGroupsOrDefault("RISK_CORRELATION_GROUPS"),
		DailyLossLimit:       getDecimalOrDefault("RISK_DAILY_LOSS_LIMIT", "50.00"),
		MaxDrawdownPct:       getDecimalOrDefault("RISK_MAX_DRAWDOWN_PCT", "0.10"),
		MaxPnLDrawdownForBuys: getDecimalOrDefault("RISK_MAX_PNL_DRAWDOWN_FOR_NEW_BUYS", "0.05"),
		MinTradeSize:         getDecimalOrDefault("RISK_MIN_TRADE_SIZE", "1.00"),

		// Execution defaults
		ExecutionMode:       getEnvOrDefault("EXECUTION_MODE", "paper"),
		InitialBalance:      getDecimalOrDefault("INITIAL_BALANCE", "1000.00"),
		TakerFeeRate:        getDecimalOrDefault("TAKER_FEE_RATE", "0.001"),
		MakerFeeRate:        getDecimalOrDefault("MAKER_FEE_RATE", "0"),
		MakerFillFraction:   getDecimalOrDefault("MAKER_FILL_FRACTION", "0.25"),
		LiquidationDiscount: getDecimalOrDefault("LIQUIDATION_DISCOUNT", "0.9"),
		ReconcileInterval:   getDurationOrDefault("LIVE_RECONCILE_INTERVAL", 30*time.Second),

		// Feed defaults
		SportsFeedInterval: getDurationOrDefault("SPORTS_FEED_INTERVAL", 2*time.Second),
		OddsFeedInterval:   getDurationOrDefault("ODDS_FEED_INTERVAL", 3*time.Second),
		FeedStaleAfter:     getDurationOrDefault("FEED_STALE_AFTER", 30*time.Second),
		MockFeeds:          getBoolOrDefault("MOCK_FEEDS", true),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "sportsbot"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "sportsbot123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "sportsbot"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.ExchangeWSURL == "" {
		return fmt.Errorf("EXCHANGE_WS_URL cannot be empty")
	}

	if c.ExchangeGammaURL == "" {
		return fmt.Errorf("EXCHANGE_GAMMA_API_URL cannot be empty")
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper' or 'live', got %q", c.ExecutionMode)
	}

	if c.ExecutionMode == "live" {
		if c.APIKey == "" || c.Secret == "" || c.Passphrase == "" || c.PrivateKey == "" {
			return fmt.Errorf("live mode requires EXCHANGE_API_KEY, EXCHANGE_SECRET, EXCHANGE_PASSPHRASE and EXCHANGE_PRIVATE_KEY")
		}
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("LIVE_RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}

	if c.InitialBalance.Sign() <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive, got %s", c.InitialBalance)
	}

	one := decimal.NewFromInt(1)
	if c.KellyFraction.Sign() <= 0 || c.KellyFraction.GreaterThan(one) {
		return fmt.Errorf("RISK_KELLY_FRACTION must be in (0, 1], got %s", c.KellyFraction)
	}

	if c.MaxPositionPct.Sign() <= 0 || c.MaxPositionPct.GreaterThan(one) {
		return fmt.Errorf("RISK_MAX_POSITION_PCT must be in (0, 1], got %s", c.MaxPositionPct)
	}

	if c.MaxDrawdownPct.Sign() <= 0 || c.MaxDrawdownPct.GreaterThan(one) {
		return fmt.Errorf("RISK_MAX_DRAWDOWN_PCT must be in (0, 1], got %s", c.MaxDrawdownPct)
	}

	if c.MaxPnLDrawdownForBuys.Sign() <= 0 || c.MaxPnLDrawdownForBuys.GreaterThan(one) {
		return fmt.Errorf("RISK_MAX_PNL_DRAWDOWN_FOR_NEW_BUYS must be in (0, 1], got %s", c.MaxPnLDrawdownForBuys)
	}

	if c.MakerFillFraction.Sign() <= 0 || c.MakerFillFraction.GreaterThan(one) {
		return fmt.Errorf("MAKER_FILL_FRACTION must be in (0, 1], got %s", c.MakerFillFraction)
	}

	if c.LiquidationDiscount.Sign() < 0 || c.LiquidationDiscount.GreaterThan(one) {
		return fmt.Errorf("LIQUIDATION_DISCOUNT must be in [0, 1], got %s", c.LiquidationDiscount)
	}

	if c.TakerFeeRate.Sign() < 0 || c.MakerFeeRate.Sign() < 0 {
		return fmt.Errorf("fee rates cannot be negative")
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDecimalOrDefault(key string, defaultValue string) decimal.Decimal {
	fallback := decimal.RequireFromString(defaultValue)

	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return fallback
	}

	return d
}

func getSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getGroupsOrDefault parses correlation groups from a comma-separated
// list of "slug-substring:group" pairs, e.g. "nba-:basketball,nfl-:football".
func getGroupsOrDefault(key string) map[string]string {
	groups := make(map[string]string)
	value := os.Getenv(key)
	if value == "" {
		return groups
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		groups[parts[0]] = parts[1]
	}
	return groups
}
