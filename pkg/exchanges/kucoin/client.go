// Package kucoin implements the Exchange capability over KuCoin USDT-margined
// perpetual futures. Sizes on the wire are integer lots; the client converts
// between base-unit quantities and lots using the contract multiplier.
package kucoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal-core/pkg/exchanges/common"

	"github.com/google/uuid"
)

// Config holds KuCoin futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	Leverage   int // default leverage sent with orders
}

// Client handles KuCoin USDT-margined perpetual futures.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter

	mu          sync.RWMutex
	multipliers map[string]float64 // pair -> contract multiplier (base units per lot)
}

var _ common.Exchange = (*Client)(nil)

// NewClient creates a new KuCoin futures client.
func NewClient(cfg Config) *Client {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 5
	}
	c := &Client{
		cfg:         cfg,
		baseURL:     "https://api-futures.kucoin.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		multipliers: make(map[string]float64),
	}
	c.timeSync = common.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.GetServerTime(ctx)
	})
	c.rateLimiter = common.NewRateLimiter(2000, 30*time.Second, 8)
	return c
}

// Name identifies the venue.
func (c *Client) Name() common.Venue { return common.VenueKuCoin }

// RequiresLeverageInit is true: KuCoin takes leverage per order, and the
// engine must have it configured before the first entry on a pair.
func (c *Client) RequiresLeverageInit() bool { return true }

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

// CreateOrder places an order, converting qty to lots.
func (c *Client) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" || c.cfg.Passphrase == "" {
		return nil, common.E(common.CodeValidation, "kucoin futures: API key/secret/passphrase required")
	}

	mult, err := c.multiplier(ctx, req.Pair)
	if err != nil {
		return nil, err
	}

	clientOid := req.ClientOrderID
	if clientOid == "" {
		clientOid = uuid.NewString()
	}

	c.mu.RLock()
	leverage := c.cfg.Leverage
	c.mu.RUnlock()

	body := map[string]any{
		"clientOid": clientOid,
		"symbol":    req.Pair,
		"side":      strings.ToLower(string(req.Side)),
		"leverage":  strconv.Itoa(leverage),
	}

	if req.ClosePosition {
		body["closeOrder"] = true
	} else {
		lots := int64(math.Round(req.Qty / mult))
		if lots < 1 {
			return nil, common.E(common.CodeValidation,
				"%s: qty %v is below one lot (multiplier %v)", req.Pair, req.Qty, mult)
		}
		body["size"] = lots
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	switch req.Type {
	case common.OrderTypeLimit:
		body["type"] = "limit"
		body["price"] = formatFloat(req.Price)
		if req.TimeInForce == common.TIFIOC {
			body["timeInForce"] = "IOC"
		} else {
			body["timeInForce"] = "GTC"
		}

	case common.OrderTypeMarket:
		body["type"] = "market"

	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		body["type"] = "market"
		body["stop"] = stopDirection(req.Type, req.Side)
		body["stopPrice"] = formatFloat(req.StopPrice)
		body["stopPriceType"] = "MP" // mark price

	default:
		return nil, common.E(common.CodeValidation, "kucoin futures: unsupported order type %q", req.Type)
	}

	raw, err := c.doSigned(ctx, http.MethodPost, "/api/v1/orders", body)
	if err != nil {
		return nil, err
	}
	var data struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}
	return &common.OrderResult{
		ExchangeOrderID: data.OrderID,
		ClientOrderID:   clientOid,
		Status:          common.StatusNew,
		OrigQty:         req.Qty,
		UpdateTime:      c.now(),
		Raw:             json.RawMessage(raw),
	}, nil
}

// stopDirection maps a trigger type and order side to KuCoin's up/down flag.
// A stop-loss fires against the position; a take-profit fires with it.
func stopDirection(t common.OrderType, side common.Side) string {
	selling := side == common.SideSell
	if t == common.OrderTypeStopMarket {
		if selling {
			return "down"
		}
		return "up"
	}
	if selling {
		return "up"
	}
	return "down"
}

// CancelOrder cancels by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, pair, orderID string) error {
	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	return err
}

// GetOrderStatus fetches a single order.
func (c *Client) GetOrderStatus(ctx context.Context, pair, orderID string) (*common.OrderInfo, error) {
	raw, err := c.doSigned(ctx, http.MethodGet, "/api/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	var o kcOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	mult, err := c.multiplier(ctx, o.Symbol)
	if err != nil {
		mult = 1
	}
	info := o.toInfo(mult)
	return &info, nil
}

type kcOrder struct {
	ID          string `json:"id"`
	ClientOid   string `json:"clientOid"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Stop        string `json:"stop"` // "up"/"down" on trigger orders, empty otherwise
	Price       string `json:"price"`
	StopPrice   string `json:"stopPrice"`
	Size        int64  `json:"size"`
	FilledSize  int64  `json:"filledSize"`
	IsActive    bool   `json:"isActive"`
	CancelExist bool   `json:"cancelExist"`
	ReduceOnly  bool   `json:"reduceOnly"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// triggerType inverts stopDirection: a sell firing downward protects a long
// (stop-loss), a sell firing upward takes profit, and vice versa for buys.
func triggerType(stop string, side common.Side) common.OrderType {
	selling := side == common.SideSell
	if (selling && stop == "down") || (!selling && stop == "up") {
		return common.OrderTypeStopMarket
	}
	return common.OrderTypeTakeProfitMarket
}

func (o kcOrder) toInfo(mult float64) common.OrderInfo {
	status := common.StatusFilled
	switch {
	case o.IsActive:
		status = common.StatusNew
		if o.FilledSize > 0 {
			status = common.StatusPartial
		}
	case o.CancelExist:
		status = common.StatusCanceled
	}
	otype := common.OrderTypeLimit
	switch {
	case o.Stop != "":
		otype = triggerType(o.Stop, common.Side(strings.ToUpper(o.Side)))
	case o.Type == "market":
		otype = common.OrderTypeMarket
	}
	return common.OrderInfo{
		ExchangeOrderID: o.ID,
		ClientOrderID:   o.ClientOid,
		Pair:            o.Symbol,
		Side:            common.Side(strings.ToUpper(o.Side)),
		Type:            otype,
		Price:           parseF(o.Price),
		StopPrice:       parseF(o.StopPrice),
		OrigQty:         float64(o.Size) * mult,
		ExecutedQty:     float64(o.FilledSize) * mult,
		Status:          status,
		ReduceOnly:      o.ReduceOnly,
		UpdateTime:      o.UpdatedAt,
	}
}

// GetOpenOrders lists active orders; empty pair means all. Untriggered stop
// and take-profit orders live under a separate endpoint on KuCoin, so both
// are fetched and merged.
func (c *Client) GetOpenOrders(ctx context.Context, pair string) ([]common.OrderInfo, error) {
	var out []common.OrderInfo
	for _, path := range []string{"/api/v1/orders?status=active", "/api/v1/stopOrders"} {
		if pair != "" {
			if strings.Contains(path, "?") {
				path += "&symbol=" + pair
			} else {
				path += "?symbol=" + pair
			}
		}
		raw, err := c.doSigned(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var data struct {
			Items []kcOrder `json:"items"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode open orders: %w", err)
		}
		for _, o := range data.Items {
			mult, merr := c.multiplier(ctx, o.Symbol)
			if merr != nil {
				mult = 1
			}
			out = append(out, o.toInfo(mult))
		}
	}
	return out, nil
}

type kcPosition struct {
	Symbol        string  `json:"symbol"`
	CurrentQty    int64   `json:"currentQty"` // lots, signed
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealisedPnl float64 `json:"unrealisedPnl"`
	RealLeverage  float64 `json:"realLeverage"`
	IsOpen        bool    `json:"isOpen"`
}

// GetPositions lists open positions; empty pair means all.
func (c *Client) GetPositions(ctx context.Context, pair string) ([]common.Position, error) {
	var (
		raw []byte
		err error
	)
	if pair != "" {
		raw, err = c.doSigned(ctx, http.MethodGet, "/api/v1/position?symbol="+pair, nil)
		if err != nil {
			return nil, err
		}
		var p kcPosition
		if uerr := json.Unmarshal(raw, &p); uerr != nil {
			return nil, fmt.Errorf("decode position: %w", uerr)
		}
		return c.toPositions(ctx, []kcPosition{p}), nil
	}

	raw, err = c.doSigned(ctx, http.MethodGet, "/api/v1/positions", nil)
	if err != nil {
		return nil, err
	}
	var ps []kcPosition
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return c.toPositions(ctx, ps), nil
}

func (c *Client) toPositions(ctx context.Context, ps []kcPosition) []common.Position {
	out := make([]common.Position, 0, len(ps))
	for _, p := range ps {
		if !p.IsOpen || p.CurrentQty == 0 {
			continue
		}
		mult, err := c.multiplier(ctx, p.Symbol)
		if err != nil {
			mult = 1
		}
		out = append(out, common.Position{
			Pair:             p.Symbol,
			PositionAmt:      float64(p.CurrentQty) * mult,
			EntryPrice:       p.AvgEntryPrice,
			MarkPrice:        p.MarkPrice,
			UnrealizedProfit: p.UnrealisedPnl,
			Leverage:         int(p.RealLeverage),
		})
	}
	return out
}

// GetBalances returns the USDT account overview.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	raw, err := c.doSigned(ctx, http.MethodGet, "/api/v1/account-overview?currency=USDT", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Currency         string  `json:"currency"`
		AccountEquity    float64 `json:"accountEquity"`
		AvailableBalance float64 `json:"availableBalance"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode account overview: %w", err)
	}
	return []common.Balance{{
		Asset:     data.Currency,
		Total:     data.AccountEquity,
		Available: data.AvailableBalance,
	}}, nil
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

// SetLeverage stores the leverage to send with subsequent orders. KuCoin has
// no standalone leverage endpoint for the order flow used here.
func (c *Client) SetLeverage(ctx context.Context, pair string, leverage int) error {
	if leverage < 1 {
		leverage = 1
	}
	if leverage > 100 {
		leverage = 100
	}
	c.mu.Lock()
	c.cfg.Leverage = leverage
	c.mu.Unlock()
	return nil
}

// GetServerTime fetches the venue clock.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	raw, err := c.doPublic(ctx, "/api/v1/timestamp")
	if err != nil {
		return 0, err
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// multiplier returns base units per lot for a pair, fetching the contract
// catalog on first use.
func (c *Client) multiplier(ctx context.Context, pair string) (float64, error) {
	c.mu.RLock()
	m, ok := c.multipliers[pair]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}
	if _, err := c.FetchSymbols(ctx); err != nil {
		return 0, err
	}
	c.mu.RLock()
	m, ok = c.multipliers[pair]
	c.mu.RUnlock()
	if !ok {
		return 0, common.E(common.CodeUnsupportedSymbol, "kucoin has no contract %s", pair)
	}
	return m, nil
}

// doSigned signs and sends an authenticated request (KC-API v2 signing).
func (c *Client) doSigned(ctx context.Context, method, path string, body map[string]any) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, common.Wrap(common.CodeTimeout, err, "rate limiter wait")
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	ts := strconv.FormatInt(c.now(), 10)
	sig := signB64(ts+method+path+string(payload), c.cfg.APISecret)
	passphrase := signB64(c.cfg.Passphrase, c.cfg.APISecret)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("KC-API-KEY", c.cfg.APIKey)
	req.Header.Set("KC-API-SIGN", sig)
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-PASSPHRASE", passphrase)
	req.Header.Set("KC-API-KEY-VERSION", "2")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, method, path)
}

// doPublic sends an unauthenticated request.
func (c *Client) doPublic(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req, http.MethodGet, path)
}

// send executes the request and unwraps KuCoin's response envelope.
func (c *Client) send(req *http.Request, method, path string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, common.Wrap(common.CodeTimeout, err, "kucoin %s %s", method, path)
		}
		return nil, common.Wrap(common.CodeNetwork, err, "kucoin %s %s", method, path)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, mapAPIError(res.StatusCode, raw)
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Code != "" && envelope.Code != "200000" {
		return nil, mapEnvelopeError(envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

func mapAPIError(httpStatus int, body []byte) *common.Error {
	switch {
	case httpStatus == 429:
		return common.E(common.CodeRateLimited, "kucoin rate limited: %s", string(body))
	case httpStatus >= 500:
		return common.E(common.CodeNetwork, "kucoin server error %d: %s", httpStatus, string(body))
	}
	return common.E(common.CodeExchangeRejected, "kucoin status %d: %s", httpStatus, string(body))
}

func mapEnvelopeError(code, msg string) *common.Error {
	lower := strings.ToLower(msg)
	switch {
	case code == "429000":
		return common.E(common.CodeRateLimited, "kucoin: %s", msg)
	case strings.Contains(lower, "not exist") || strings.Contains(lower, "not found"):
		return common.E(common.CodeOrderNotFound, "kucoin: %s", msg)
	case strings.Contains(lower, "balance insufficient") || strings.Contains(lower, "margin"):
		return common.E(common.CodeExchangeRejected, "kucoin (%s): %s", code, msg)
	}
	return common.E(common.CodeExchangeRejected, "kucoin (%s): %s", code, msg)
}

func signB64(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
