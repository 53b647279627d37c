package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Funds live on Polygon: USDC is the trading collateral, POL pays gas,
// and the CTF exchange needs a USDC allowance before it can settle.
const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	dataAPIBaseURL     = "https://data-api.polymarket.com"
)

var erc20ABI = mustParseABI(`[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Client reads wallet funding state from the Polygon RPC and open
// positions from the Data API.
type Client struct {
	rpcURL     string
	dataAPIURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// Balances holds the on-chain funding state of the trading wallet.
type Balances struct {
	POL           *big.Int // wei
	USDC          *big.Int // 6-decimal units
	USDCAllowance *big.Int // 6-decimal units, granted to the CTF exchange
}

// Position is one open market position as reported by the Data API.
type Position struct {
	MarketSlug   string
	Outcome      string
	Size         float64
	Value        float64
	InitialValue float64
	CashPnL      float64
	PercentPnL   float64
}

type dataAPIPosition struct {
	Size         float64 `json:"size"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	PercentPnL   float64 `json:"percentPnl"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
}

// NewClient creates a new wallet client.
func NewClient(rpcURL string, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Client{
		rpcURL:     rpcURL,
		dataAPIURL: dataAPIBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

// GetBalances fetches POL, USDC and the exchange allowance in one RPC
// session.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	eth, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer eth.Close()

	pol, err := eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get POL balance: %w", err)
	}

	usdc, err := c.callERC20(ctx, eth, polygonUSDC, "balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowance, err := c.callERC20(ctx, eth, polygonUSDC, "allowance",
		address, common.HexToAddress(polygonCTFExchange))
	if err != nil {
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	return &Balances{POL: pol, USDC: usdc, USDCAllowance: allowance}, nil
}

// callERC20 performs a read-only uint256 call against a token contract.
func (c *Client) callERC20(
	ctx context.Context,
	eth *ethclient.Client,
	token string,
	method string,
	args ...any,
) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	contract := common.HexToAddress(token)
	result, err := eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	return new(big.Int).SetBytes(result), nil
}

// GetPositions fetches open positions from the Data API. Dust entries
// below the API's size threshold are excluded server side, zero-size
// leftovers are dropped here.
func (c *Client) GetPositions(ctx context.Context, address string) ([]Position, error) {
	url := fmt.Sprintf("%s/positions?user=%s&sizeThreshold=0.01", c.dataAPIURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data API status %d", resp.StatusCode)
	}

	var raw []dataAPIPosition
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		if p.Size <= 0 {
			continue
		}
		positions = append(positions, Position{
			MarketSlug:   p.Slug,
			Outcome:      p.Outcome,
			Size:         p.Size,
			Value:        p.CurrentValue,
			InitialValue: p.InitialValue,
			CashPnL:      p.CashPnL,
			PercentPnL:   p.PercentPnL,
		})
	}
	return positions, nil
}
