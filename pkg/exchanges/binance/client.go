// Package binance implements the Exchange capability over Binance USDT-M
// perpetual futures.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-core/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client handles Binance USDT-M perpetual futures.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
}

var _ common.Exchange = (*Client)(nil)

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	c.timeSync = common.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.GetServerTime(ctx)
	})
	c.rateLimiter = common.NewRateLimiter(2400, time.Minute, 10) // 2400 weight/min for futures
	return c
}

// Name identifies the venue.
func (c *Client) Name() common.Venue { return common.VenueBinance }

// RequiresLeverageInit is false: Binance keeps per-pair leverage sticky, so
// the engine only sets it when a leverage change is requested.
func (c *Client) RequiresLeverageInit() bool { return false }

// StartTimeSync begins periodic clock synchronization.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	OrigQty       string `json:"origQty"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r orderResp) toResult(raw []byte) *common.OrderResult {
	return &common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
		ClientOrderID:   r.ClientOrderID,
		Status:          mapStatus(r.Status),
		AvgPrice:        parseF(r.AvgPrice),
		ExecutedQty:     parseF(r.ExecutedQty),
		OrigQty:         parseF(r.OrigQty),
		UpdateTime:      r.UpdateTime,
		Raw:             json.RawMessage(raw),
	}
}

// CreateOrder places an order.
func (c *Client) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, common.E(common.CodeValidation, "binance futures: API key/secret required")
	}

	params := url.Values{}
	params.Set("symbol", req.Pair)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))

	switch req.Type {
	case common.OrderTypeLimit:
		params.Set("quantity", formatFloat(req.Qty))
		params.Set("price", formatFloat(req.Price))
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("timeInForce", string(tif))

	case common.OrderTypeMarket:
		params.Set("quantity", formatFloat(req.Qty))

	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		params.Set("stopPrice", formatFloat(req.StopPrice))
		if req.WorkingType != "" {
			params.Set("workingType", req.WorkingType)
		}
		if req.PriceProtect {
			params.Set("priceProtect", "TRUE")
		}
		if req.ClosePosition {
			params.Set("closePosition", "true")
		} else {
			params.Set("quantity", formatFloat(req.Qty))
		}

	default:
		return nil, common.E(common.CodeValidation, "binance futures: unsupported order type %q", req.Type)
	}

	// closePosition already implies reduce-only and rejects the flag.
	if req.ReduceOnly && !req.ClosePosition {
		params.Set("reduceOnly", "true")
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return resp.toResult(body), nil
}

// CancelOrder cancels an order by pair and exchange id.
func (c *Client) CancelOrder(ctx context.Context, pair, orderID string) error {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("orderId", orderID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// GetOrderStatus fetches a single order.
func (c *Client) GetOrderStatus(ctx context.Context, pair, orderID string) (*common.OrderInfo, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("orderId", orderID)
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}
	var o openOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("decode order status: %w", err)
	}
	info := o.toInfo()
	return &info, nil
}

type openOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (o openOrder) toInfo() common.OrderInfo {
	return common.OrderInfo{
		ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:   o.ClientOrderID,
		Pair:            o.Symbol,
		Side:            common.Side(o.Side),
		Type:            common.OrderType(o.Type),
		Price:           parseF(o.Price),
		StopPrice:       parseF(o.StopPrice),
		OrigQty:         parseF(o.OrigQty),
		ExecutedQty:     parseF(o.ExecutedQty),
		Status:          mapStatus(o.Status),
		ReduceOnly:      o.ReduceOnly,
		UpdateTime:      o.UpdateTime,
	}
}

// GetOpenOrders lists open orders; empty pair means all.
func (c *Client) GetOpenOrders(ctx context.Context, pair string) ([]common.OrderInfo, error) {
	params := url.Values{}
	if pair != "" {
		params.Set("symbol", pair)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []openOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.toInfo())
	}
	return out, nil
}

type positionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
}

// GetPositions returns the position risk view; zero-size rows are dropped.
func (c *Client) GetPositions(ctx context.Context, pair string) ([]common.Position, error) {
	params := url.Values{}
	if pair != "" {
		params.Set("symbol", pair)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var risks []positionRisk
	if err := json.Unmarshal(body, &risks); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]common.Position, 0, len(risks))
	for _, r := range risks {
		amt := parseF(r.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(r.Leverage)
		out = append(out, common.Position{
			Pair:             r.Symbol,
			PositionAmt:      amt,
			EntryPrice:       parseF(r.EntryPrice),
			MarkPrice:        parseF(r.MarkPrice),
			UnrealizedProfit: parseF(r.UnRealizedProfit),
			Leverage:         lev,
		})
	}
	return out, nil
}

// GetBalances returns futures wallet balances.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	out := make([]common.Balance, 0, len(raw))
	for _, b := range raw {
		out = append(out, common.Balance{
			Asset:     b.Asset,
			Total:     parseF(b.Balance),
			Available: parseF(b.AvailableBalance),
		})
	}
	return out, nil
}

// ClosePosition submits a reduce-only market order.
func (c *Client) ClosePosition(ctx context.Context, pair string, qty float64, side common.Side) (*common.OrderResult, error) {
	return c.CreateOrder(ctx, common.OrderRequest{
		Pair:       pair,
		Side:       side,
		Type:       common.OrderTypeMarket,
		Qty:        qty,
		ReduceOnly: true,
	})
}

// SetLeverage sets leverage for a pair, clamped to the venue range.
func (c *Client) SetLeverage(ctx context.Context, pair string, leverage int) error {
	if leverage < 1 {
		leverage = 1
	}
	if leverage > 125 {
		leverage = 125
	}
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

// GetServerTime fetches futures server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

// doSigned signs and sends an authenticated request.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, common.Wrap(common.CodeTimeout, err, "rate limiter wait")
	}

	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	return c.send(req, method, path)
}

// doPublic sends an unauthenticated request.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req, http.MethodGet, path)
}

func (c *Client) send(req *http.Request, method, path string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, common.Wrap(common.CodeTimeout, err, "binance %s %s", method, path)
		}
		return nil, common.Wrap(common.CodeNetwork, err, "binance %s %s", method, path)
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, mapAPIError(res.StatusCode, body)
	}
	return body, nil
}
