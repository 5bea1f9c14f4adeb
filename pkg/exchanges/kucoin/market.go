package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"signal-core/pkg/exchanges/common"
)

// GetMarkPrice returns the current mark price for a pair.
func (c *Client) GetMarkPrice(ctx context.Context, pair string) (float64, error) {
	raw, err := c.doPublic(ctx, "/api/v1/mark-price/"+pair+"/current")
	if err != nil {
		return 0, err
	}
	var data struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, fmt.Errorf("decode mark price: %w", err)
	}
	if data.Value <= 0 {
		return 0, common.E(common.CodeMarkPriceUnavailable, "kucoin returned no mark price for %s", pair)
	}
	return data.Value, nil
}

// GetOrderBook returns a depth snapshot (top 20 levels).
func (c *Client) GetOrderBook(ctx context.Context, pair string, depth int) (*common.OrderBook, error) {
	raw, err := c.doPublic(ctx, "/api/v1/level2/depth20?symbol="+pair)
	if err != nil {
		return nil, err
	}
	var data struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	if depth <= 0 || depth > len(data.Bids) {
		depth = len(data.Bids)
	}
	book := &common.OrderBook{Pair: pair}
	for i, lvl := range data.Bids {
		if i >= depth {
			break
		}
		book.Bids = append(book.Bids, common.BookLevel{Price: lvl[0], Qty: lvl[1]})
	}
	for i, lvl := range data.Asks {
		if i >= depth {
			break
		}
		book.Asks = append(book.Asks, common.BookLevel{Price: lvl[0], Qty: lvl[1]})
	}
	return book, nil
}

// GetCurrentPrices returns last trade prices, one ticker call per pair.
func (c *Client) GetCurrentPrices(ctx context.Context, pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		raw, err := c.doPublic(ctx, "/api/v1/ticker?symbol="+pair)
		if err != nil {
			return nil, err
		}
		var data struct {
			Price string `json:"price"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode ticker %s: %w", pair, err)
		}
		out[pair] = parseF(data.Price)
	}
	return out, nil
}

type kcContract struct {
	Symbol        string  `json:"symbol"`
	BaseCurrency  string  `json:"baseCurrency"`
	QuoteCurrency string  `json:"quoteCurrency"`
	Status        string  `json:"status"`
	LotSize       int64   `json:"lotSize"`
	MaxOrderQty   int64   `json:"maxOrderQty"`
	Multiplier    float64 `json:"multiplier"`
	TickSize      float64 `json:"tickSize"`
	IsInverse     bool    `json:"isInverse"`
}

// FetchSymbols downloads the active contract list and refreshes the
// multiplier table as a side effect.
func (c *Client) FetchSymbols(ctx context.Context) ([]common.SymbolInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/contracts/active", nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.send(req, http.MethodGet, "/api/v1/contracts/active")
	if err != nil {
		return nil, err
	}
	var contracts []kcContract
	if err := json.Unmarshal(raw, &contracts); err != nil {
		return nil, fmt.Errorf("decode contracts: %w", err)
	}

	mults := make(map[string]float64, len(contracts))
	out := make([]common.SymbolInfo, 0, len(contracts))
	for _, k := range contracts {
		if k.IsInverse || k.QuoteCurrency != "USDT" {
			continue
		}
		mults[k.Symbol] = k.Multiplier
		// A lot is the order granularity; expose base-unit filters so the
		// resolver and validator stay venue-agnostic.
		step := k.Multiplier * float64(k.LotSize)
		out = append(out, common.SymbolInfo{
			Pair:       k.Symbol,
			BaseAsset:  CanonicalBase(k.BaseCurrency),
			QuoteAsset: k.QuoteCurrency,
			Tradeable:  k.Status == "Open",
			StepSize:   formatFloat(step),
			TickSize:   strconv.FormatFloat(k.TickSize, 'f', -1, 64),
			MinQty:     formatFloat(step),
			MaxQty:     formatFloat(k.Multiplier * float64(k.MaxOrderQty)),
		})
	}

	c.mu.Lock()
	for pair, m := range mults {
		c.multipliers[pair] = m
	}
	c.mu.Unlock()

	return out, nil
}
