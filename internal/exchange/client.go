package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/utils"
)

const (
	BaseURL     = "https://api.bitget.com"
	productType = "USDT-FUTURES"

	successCode = "00000"
)

// Client is a typed REST client for Bitget USDT-margined futures. It exposes
// only the narrow capability surface the trading loop needs; all defensive
// field-sniffing over venue payloads lives in normalize.go.
type Client struct {
	client     *resty.Client
	apiKey     string
	apiSecret  string
	passphrase string
	marginCoin string
	logger     *logrus.Logger
}

func NewClient(config Config, marginCoin string, logger *logrus.Logger) *Client {
	client := resty.New()

	baseURL := BaseURL
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &Client{
		client:     client,
		apiKey:     config.APIKey,
		apiSecret:  config.APISecret,
		passphrase: config.Passphrase,
		marginCoin: marginCoin,
		logger:     logger,
	}
}

func (c *Client) sign(timestamp, method, requestPath, body string) string {
	message := timestamp + method + requestPath + body
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) setAuthHeaders(req *resty.Request, method, requestPath, body string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req.SetHeaders(map[string]string{
		"ACCESS-KEY":        c.apiKey,
		"ACCESS-SIGN":       c.sign(timestamp, method, requestPath, body),
		"ACCESS-TIMESTAMP":  timestamp,
		"ACCESS-PASSPHRASE": c.passphrase,
		"Content-Type":      "application/json",
		"locale":            "en-US",
	})
}

// request performs one call and decodes the response envelope into out.
// Network failures come back as TransientError, venue rejections as APIError.
func (c *Client) request(ctx context.Context, method, endpoint, query string, body interface{}, out interface{}) error {
	requestPath := endpoint
	if query != "" {
		requestPath += "?" + query
	}

	req := c.client.R().SetContext(ctx)

	var bodyStr string
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyStr = string(bodyBytes)
		req.SetBody(bodyBytes)
	}

	if c.apiKey != "" {
		c.setAuthHeaders(req, method, requestPath, bodyStr)
	}

	var resp *resty.Response
	var err error
	switch method {
	case "GET":
		resp, err = req.Get(requestPath)
	case "POST":
		resp, err = req.Post(requestPath)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return &TransientError{Err: err}
	}
	if isRetryableStatus(resp.StatusCode()) {
		return &TransientError{Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode(), endpoint)}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Code != successCode {
		return &APIError{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	if out != nil {
		dataBytes, err := json.Marshal(apiResp.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
		if err := json.Unmarshal(dataBytes, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return nil
}

// FetchCandles returns up to limit most recent bars, oldest first. The last
// bar is the still-forming candle.
func (c *Client) FetchCandles(ctx context.Context, symbol, granularity string, limit int) ([]models.Bar, error) {
	query := fmt.Sprintf("symbol=%s&productType=%s&granularity=%s&limit=%d",
		symbol, productType, granularity, limit)

	var rawCandles [][]string
	if err := c.request(ctx, "GET", "/api/v2/mix/market/candles", query, nil, &rawCandles); err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	bars := make([]models.Bar, 0, len(rawCandles))
	for _, raw := range rawCandles {
		if len(raw) < 6 {
			continue
		}
		timestamp, _ := strconv.ParseInt(raw[0], 10, 64)
		open, _ := strconv.ParseFloat(raw[1], 64)
		high, _ := strconv.ParseFloat(raw[2], 64)
		low, _ := strconv.ParseFloat(raw[3], 64)
		closePrice, _ := strconv.ParseFloat(raw[4], 64)
		volume, _ := strconv.ParseFloat(raw[5], 64)

		bars = append(bars, models.Bar{
			Timestamp: timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	return bars, nil
}

// FetchPosition returns the open position for symbol, or nil when flat.
func (c *Client) FetchPosition(ctx context.Context, symbol string) (*Position, error) {
	query := fmt.Sprintf("symbol=%s&productType=%s&marginCoin=%s", symbol, productType, c.marginCoin)

	var raw []rawPosition
	if err := c.request(ctx, "GET", "/api/v2/mix/position/single-position", query, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch position: %w", err)
	}

	for _, p := range raw {
		size := utils.ParseDecimalSafe(p.Total)
		if p.Symbol == symbol && size > 0 {
			return &Position{
				Symbol:     p.Symbol,
				Side:       p.HoldSide,
				Size:       size,
				EntryPrice: normalizeEntryPrice(p),
			}, nil
		}
	}

	return nil, nil
}

// FetchAvailableBalance returns the free margin in the margin coin.
func (c *Client) FetchAvailableBalance(ctx context.Context, symbol string) (float64, error) {
	acct, err := c.fetchAccount(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return utils.ParseDecimalSafe(acct.Available), nil
}

// FetchTotalBalance returns the total account equity in the margin coin.
func (c *Client) FetchTotalBalance(ctx context.Context, symbol string) (float64, error) {
	acct, err := c.fetchAccount(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if v := utils.ParseDecimalSafe(acct.AccountEquity); v > 0 {
		return v, nil
	}
	return utils.ParseDecimalSafe(acct.USDTEquity), nil
}

func (c *Client) fetchAccount(ctx context.Context, symbol string) (*rawAccount, error) {
	query := fmt.Sprintf("symbol=%s&productType=%s&marginCoin=%s", symbol, productType, c.marginCoin)

	var acct rawAccount
	if err := c.request(ctx, "GET", "/api/v2/mix/account/account", query, nil, &acct); err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &acct, nil
}

type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginMode  string `json:"marginMode"`
	MarginCoin  string `json:"marginCoin"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Size        string `json:"size"`
	Price       string `json:"price,omitempty"`
	ReduceOnly  string `json:"reduceOnly,omitempty"`
	ClientOid   string `json:"clientOid"`
}

type placeOrderResponse struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// PlaceMarketOrder submits a market order and reports the fill. When the
// order-detail lookup after submission fails, the requested quantity is
// assumed filled with an unknown average price.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, reduceOnly bool) (*OrderResult, error) {
	clientOid := uuid.New().String()

	order := placeOrderRequest{
		Symbol:      symbol,
		ProductType: productType,
		MarginMode:  "crossed",
		MarginCoin:  c.marginCoin,
		Side:        side,
		OrderType:   "market",
		Size:        strconv.FormatFloat(qty, 'f', -1, 64),
		ClientOid:   clientOid,
	}
	if reduceOnly {
		order.ReduceOnly = "YES"
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":      symbol,
		"side":        side,
		"quantity":    qty,
		"type":        "market",
		"reduce_only": reduceOnly,
		"client_oid":  clientOid,
	}).Info("Placing market order")

	var placed placeOrderResponse
	if err := c.request(ctx, "POST", "/api/v2/mix/order/place-order", "", order, &placed); err != nil {
		return nil, err
	}

	detail, err := c.FetchOrder(ctx, symbol, placed.OrderID)
	if err != nil {
		c.logger.WithError(err).WithField("order_id", placed.OrderID).
			Warn("Could not fetch fill detail after market order, assuming full fill")
		return &OrderResult{OrderID: placed.OrderID, FilledQty: qty}, nil
	}

	return &OrderResult{
		OrderID:   placed.OrderID,
		FilledQty: detail.FilledQty,
		Remaining: qty - detail.FilledQty,
		AvgPrice:  detail.AvgPrice,
	}, nil
}

// PlaceReduceOnlyLimit submits a reduce-only limit sell and returns its order
// id. The caller is responsible for rounding price and quantity to the
// contract precision first.
func (c *Client) PlaceReduceOnlyLimit(ctx context.Context, symbol string, qty, price float64) (string, error) {
	clientOid := uuid.New().String()

	order := placeOrderRequest{
		Symbol:      symbol,
		ProductType: productType,
		MarginMode:  "crossed",
		MarginCoin:  c.marginCoin,
		Side:        "sell",
		OrderType:   "limit",
		Size:        strconv.FormatFloat(qty, 'f', -1, 64),
		Price:       strconv.FormatFloat(price, 'f', -1, 64),
		ReduceOnly:  "YES",
		ClientOid:   clientOid,
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"quantity":   qty,
		"price":      price,
		"type":       "limit",
		"client_oid": clientOid,
	}).Info("Placing reduce-only limit order")

	var placed placeOrderResponse
	if err := c.request(ctx, "POST", "/api/v2/mix/order/place-order", "", order, &placed); err != nil {
		return "", err
	}

	return placed.OrderID, nil
}

type cancelOrderRequest struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	OrderID     string `json:"orderId"`
}

// CancelOrder cancels an order by id. A not-found rejection is passed through
// as APIError for the caller to recognize.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := cancelOrderRequest{
		Symbol:      symbol,
		ProductType: productType,
		OrderID:     orderID,
	}

	if err := c.request(ctx, "POST", "/api/v2/mix/order/cancel-order", "", body, nil); err != nil {
		return err
	}

	c.logger.WithField("order_id", orderID).Info("Order cancelled")
	return nil
}

// FetchOrder returns the normalized status of an order.
func (c *Client) FetchOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	query := fmt.Sprintf("symbol=%s&productType=%s&orderId=%s", symbol, productType, orderID)

	var raw rawOrderDetail
	if err := c.request(ctx, "GET", "/api/v2/mix/order/detail", query, nil, &raw); err != nil {
		return nil, err
	}

	return &Order{
		ID:        raw.OrderID,
		Status:    raw.State,
		FilledQty: utils.ParseDecimalSafe(raw.BaseVolume),
		AvgPrice:  normalizeFillPrice(raw),
	}, nil
}

type setLeverageRequest struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginCoin  string `json:"marginCoin"`
	Leverage    string `json:"leverage"`
}

// SetLeverage sets the account leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := setLeverageRequest{
		Symbol:      symbol,
		ProductType: productType,
		MarginCoin:  c.marginCoin,
		Leverage:    strconv.Itoa(leverage),
	}
	return c.request(ctx, "POST", "/api/v2/mix/account/set-leverage", "", body, nil)
}

type setMarginModeRequest struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginCoin  string `json:"marginCoin"`
	MarginMode  string `json:"marginMode"`
}

// SetMarginMode sets cross or isolated margin for symbol.
func (c *Client) SetMarginMode(ctx context.Context, symbol, mode string) error {
	body := setMarginModeRequest{
		Symbol:      symbol,
		ProductType: productType,
		MarginCoin:  c.marginCoin,
		MarginMode:  mode,
	}
	return c.request(ctx, "POST", "/api/v2/mix/account/set-margin-mode", "", body, nil)
}

// FetchSymbolSpec returns the contract precision rules for symbol.
func (c *Client) FetchSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	query := fmt.Sprintf("productType=%s&symbol=%s", productType, symbol)

	var contracts []rawContract
	if err := c.request(ctx, "GET", "/api/v2/mix/market/contracts", query, nil, &contracts); err != nil {
		return nil, fmt.Errorf("failed to fetch contract spec: %w", err)
	}

	for _, raw := range contracts {
		if raw.Symbol != symbol {
			continue
		}
		pricePlaces, _ := strconv.ParseInt(raw.PricePlace, 10, 32)
		volumePlaces, _ := strconv.ParseInt(raw.VolumePlace, 10, 32)
		spec := &SymbolSpec{
			Symbol:         raw.Symbol,
			PricePlaces:    int32(pricePlaces),
			VolumePlaces:   int32(volumePlaces),
			SizeMultiplier: utils.ParseDecimalSafe(raw.SizeMultiplier),
			MinTradeNum:    utils.ParseDecimalSafe(raw.MinTradeNum),
		}
		if spec.SizeMultiplier <= 0 {
			spec.SizeMultiplier = 1
		}
		return spec, nil
	}

	return nil, fmt.Errorf("contract spec for %s not found", symbol)
}
