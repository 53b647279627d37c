package execution

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderClient signs and submits orders to the exchange CLOB. Orders
// are EIP-712 signed with the trading key; requests carry an HMAC
// signature over timestamp, method, path and body using the API
// secret.
type OrderClient struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA address (signer)
	proxyAddress  string // proxy address (maker/funder)
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger
}

// OrderClientConfig holds configuration for the order client.
type OrderClientConfig struct {
	BaseURL       string
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	Address       string
	ProxyAddress  string
	SignatureType int
	Logger        *zap.Logger
}

// NewOrderClient creates a new order client.
func NewOrderClient(cfg *OrderClientConfig) (*OrderClient, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	// Derive EOA address if not provided.
	address := cfg.Address
	if address == "" {
		publicKey := privateKey.Public()
		publicKeyECDSA, _ := publicKey.(*ecdsa.PublicKey)
		address = crypto.PubkeyToAddress(*publicKeyECDSA).Hex()
	}

	chainID := big.NewInt(137) // Polygon mainnet
	orderBuilder := builder.NewExchangeOrderBuilderImpl(chainID, nil)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}

	return &OrderClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  orderBuilder,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        cfg.Logger,
	}, nil
}

// SignedOrderJSON is a signed order in the CLOB wire format.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderResponse is the API response for an order submission.
type OrderResponse struct {
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Error   string `json:"errorMsg"`
}

// OrderStatusResponse is the API response for an order lookup.
type OrderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// PlaceLimitOrder builds, signs and submits one GTC limit order.
// Quantity is in whole contracts; price in (0, 1).
func (c *OrderClient) PlaceLimitOrder(ctx context.Context, tokenID string, buy bool, price decimal.Decimal, quantity int64) (*OrderResponse, error) {
	makerAddress := c.address
	signerAddress := c.address
	if c.proxyAddress != "" {
		makerAddress = c.proxyAddress
	}

	qty := decimal.NewFromInt(quantity)
	notional := price.Mul(qty)

	// A buyer makes USDC and takes tokens; a seller the reverse.
	side := model.BUY
	makerAmount := rawAmount(notional)
	takerAmount := rawAmount(qty)
	if !buy {
		side = model.SELL
		makerAmount = rawAmount(qty)
		takerAmount = rawAmount(notional)
	}

	orderData := &model.OrderData{
		Maker:         makerAddress,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        signerAddress,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signedOrder, err := c.orderBuilder.BuildSignedOrder(c.privateKey, orderData, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	c.logger.Debug("order-built",
		zap.String("token-id", tokenID),
		zap.Bool("buy", buy),
		zap.String("price", price.String()),
		zap.Int64("quantity", quantity))

	return c.submitOrder(ctx, signedOrder)
}

func (c *OrderClient) submitOrder(ctx context.Context, order *model.SignedOrder) (*OrderResponse, error) {
	sideStr := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		sideStr = "SELL"
	}

	jsonOrder := SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          sideStr,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}

	// "owner" is the API key, not the maker address.
	orderRequest := map[string]interface{}{
		"order":     jsonOrder,
		"owner":     c.apiKey,
		"orderType": "GTC",
	}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/order", orderRequest, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("order rejected: %s", resp.Error)
	}
	return &resp, nil
}

// CancelOrder cancels one order by exchange ID.
func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]string{"orderID": orderID}
	return c.do(ctx, http.MethodDelete, "/order", body, nil)
}

// CancelAllOrders cancels every open order for the account.
func (c *OrderClient) CancelAllOrders(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cancel-all", nil, nil)
}

// GetOrder fetches the current status of an order.
func (c *OrderClient) GetOrder(ctx context.Context, orderID string) (*OrderStatusResponse, error) {
	var resp OrderStatusResponse
	if err := c.do(ctx, http.MethodGet, "/data/order/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BalanceResponse is the API response for the collateral balance, in
// 6-decimal raw units.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// GetBalance fetches the exchange-reported collateral balance.
func (c *OrderClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/balances", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	raw, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", resp.Balance, err)
	}
	return raw.Shift(-6), nil
}

// PositionResponse is one exchange-reported holding.
type PositionResponse struct {
	TokenID  string `json:"asset_id"`
	Size     string `json:"size"`
	AvgPrice string `json:"avg_price"`
}

// GetPositions fetches the exchange-reported holdings for the account.
func (c *OrderClient) GetPositions(ctx context.Context) ([]PositionResponse, error) {
	var resp []PositionResponse
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// do runs one authenticated request against the CLOB API.
func (c *OrderClient) do(ctx context.Context, method, requestPath string, body, out interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signaturePayload := timestamp + method + requestPath + string(reqBody)

	// The API secret is URL-safe base64, as is the signature.
	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(signaturePayload))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, strings.NewReader(string(reqBody)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	// POLY_ADDRESS must be the EOA address derived from the key.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// rawAmount converts a decimal USDC or token amount to the 6 decimal
// raw integer string the exchange expects.
func rawAmount(d decimal.Decimal) string {
	return d.Shift(6).Round(0).BigInt().String()
}
