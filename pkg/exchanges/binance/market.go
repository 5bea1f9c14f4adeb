package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"signal-core/pkg/exchanges/common"
)

// GetMarkPrice returns the mark price from the premium index endpoint.
func (c *Client) GetMarkPrice(ctx context.Context, pair string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	body, err := c.doPublic(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return 0, err
	}
	var res struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode mark price: %w", err)
	}
	price := parseF(res.MarkPrice)
	if price <= 0 {
		return 0, common.E(common.CodeMarkPriceUnavailable, "binance returned no mark price for %s", pair)
	}
	return price, nil
}

// GetOrderBook returns a depth snapshot.
func (c *Client) GetOrderBook(ctx context.Context, pair string, depth int) (*common.OrderBook, error) {
	if depth <= 0 {
		depth = 5
	}
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("limit", strconv.Itoa(depth))
	body, err := c.doPublic(ctx, "/fapi/v1/depth", params)
	if err != nil {
		return nil, err
	}
	var res struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	book := &common.OrderBook{Pair: pair}
	for _, lvl := range res.Bids {
		book.Bids = append(book.Bids, common.BookLevel{Price: parseF(lvl[0]), Qty: parseF(lvl[1])})
	}
	for _, lvl := range res.Asks {
		book.Asks = append(book.Asks, common.BookLevel{Price: parseF(lvl[0]), Qty: parseF(lvl[1])})
	}
	return book, nil
}

// GetCurrentPrices returns last prices for the given pairs.
func (c *Client) GetCurrentPrices(ctx context.Context, pairs []string) (map[string]float64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/ticker/price", nil)
	if err != nil {
		return nil, err
	}
	var res []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode ticker prices: %w", err)
	}
	wanted := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		wanted[p] = true
	}
	out := make(map[string]float64, len(pairs))
	for _, t := range res {
		if len(wanted) == 0 || wanted[t.Symbol] {
			out[t.Symbol] = parseF(t.Price)
		}
	}
	return out, nil
}

// FetchSymbols downloads exchangeInfo and extracts perpetual filters.
func (c *Client) FetchSymbols(ctx context.Context) ([]common.SymbolInfo, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			BaseAsset    string `json:"baseAsset"`
			QuoteAsset   string `json:"quoteAsset"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
			Filters      []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinQty      string `json:"minQty"`
				MaxQty      string `json:"maxQty"`
				Notional    string `json:"notional"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	out := make([]common.SymbolInfo, 0, len(res.Symbols))
	for _, s := range res.Symbols {
		if s.ContractType != "PERPETUAL" {
			continue
		}
		info := common.SymbolInfo{
			Pair:       s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			Tradeable:  s.Status == "TRADING",
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				info.StepSize = f.StepSize
				info.MinQty = f.MinQty
				info.MaxQty = f.MaxQty
			case "PRICE_FILTER":
				info.TickSize = f.TickSize
			case "MIN_NOTIONAL":
				if f.Notional != "" {
					info.MinNotional = f.Notional
				} else {
					info.MinNotional = f.MinNotional
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}
