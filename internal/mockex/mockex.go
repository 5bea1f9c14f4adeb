// Package mockex provides an in-memory Exchange used by unit tests across
// the internal packages.
package mockex

import (
	"context"
	"strconv"
	"sync"

	"signal-core/pkg/exchanges/common"
)

// Mock implements common.Exchange. Zero value works; function fields
// override individual calls when set.
type Mock struct {
	mu sync.Mutex

	Venue     common.Venue
	NeedsLev  bool
	MarkPrice float64
	Prices    map[string]float64
	Book      *common.OrderBook
	Positions []common.Position
	Open      []common.OrderInfo

	Created   []common.OrderRequest
	Cancelled []string
	Leverage  map[string]int

	nextID int

	CreateFn    func(ctx context.Context, req common.OrderRequest) (*common.OrderResult, error)
	CancelFn    func(ctx context.Context, pair, orderID string) error
	MarkPriceFn func(ctx context.Context, pair string) (float64, error)
	PositionsFn func(ctx context.Context, pair string) ([]common.Position, error)
}

var _ common.Exchange = (*Mock)(nil)

func (m *Mock) Name() common.Venue {
	if m.Venue == "" {
		return common.VenueBinance
	}
	return m.Venue
}

func (m *Mock) RequiresLeverageInit() bool { return m.NeedsLev }

func (m *Mock) CreateOrder(ctx context.Context, req common.OrderRequest) (*common.OrderResult, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Created = append(m.Created, req)
	return &common.OrderResult{
		ExchangeOrderID: "mock-" + strconv.Itoa(m.nextID),
		ClientOrderID:   req.ClientOrderID,
		Status:          common.StatusNew,
		OrigQty:         req.Qty,
		AvgPrice:        req.Price,
	}, nil
}

func (m *Mock) CancelOrder(ctx context.Context, pair, orderID string) error {
	if m.CancelFn != nil {
		return m.CancelFn(ctx, pair, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *Mock) GetOrderStatus(ctx context.Context, pair, orderID string) (*common.OrderInfo, error) {
	for i := range m.Open {
		if m.Open[i].ExchangeOrderID == orderID {
			return &m.Open[i], nil
		}
	}
	return nil, common.E(common.CodeOrderNotFound, "no order %s", orderID)
}

func (m *Mock) GetOpenOrders(ctx context.Context, pair string) ([]common.OrderInfo, error) {
	out := make([]common.OrderInfo, 0, len(m.Open))
	for _, o := range m.Open {
		if pair == "" || o.Pair == pair {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Mock) GetPositions(ctx context.Context, pair string) ([]common.Position, error) {
	if m.PositionsFn != nil {
		return m.PositionsFn(ctx, pair)
	}
	out := make([]common.Position, 0, len(m.Positions))
	for _, p := range m.Positions {
		if pair == "" || p.Pair == pair {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Mock) GetBalances(ctx context.Context) ([]common.Balance, error) {
	return []common.Balance{{Asset: "USDT", Total: 10000, Available: 10000}}, nil
}

func (m *Mock) GetMarkPrice(ctx context.Context, pair string) (float64, error) {
	if m.MarkPriceFn != nil {
		return m.MarkPriceFn(ctx, pair)
	}
	if m.MarkPrice <= 0 {
		return 0, common.E(common.CodeMarkPriceUnavailable, "no mark price for %s", pair)
	}
	return m.MarkPrice, nil
}

func (m *Mock) GetOrderBook(ctx context.Context, pair string, depth int) (*common.OrderBook, error) {
	if m.Book != nil {
		return m.Book, nil
	}
	return &common.OrderBook{Pair: pair}, nil
}

func (m *Mock) GetCurrentPrices(ctx context.Context, pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		if v, ok := m.Prices[p]; ok {
			out[p] = v
		}
	}
	return out, nil
}

func (m *Mock) ClosePosition(ctx context.Context, pair string, qty float64, side common.Side) (*common.OrderResult, error) {
	return m.CreateOrder(ctx, common.OrderRequest{
		Pair: pair, Side: side, Type: common.OrderTypeMarket, Qty: qty, ReduceOnly: true,
	})
}

func (m *Mock) SetLeverage(ctx context.Context, pair string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Leverage == nil {
		m.Leverage = make(map[string]int)
	}
	m.Leverage[pair] = leverage
	return nil
}

func (m *Mock) FetchSymbols(ctx context.Context) ([]common.SymbolInfo, error) {
	return nil, nil
}

// CreatedOfType filters recorded orders by type.
func (m *Mock) CreatedOfType(t common.OrderType) []common.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.OrderRequest
	for _, r := range m.Created {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// StaticFilters returns a FiltersFunc serving one filter set for any pair.
func StaticFilters(info common.SymbolInfo) common.FiltersFunc {
	return func(ctx context.Context, pair string) (common.Filters, error) {
		f, err := common.ParseFilters(info)
		if err != nil {
			return common.Filters{}, err
		}
		f.Pair = pair
		return f, nil
	}
}

// BTCFilters is a convenient filter set used across tests.
func BTCFilters() common.FiltersFunc {
	return StaticFilters(common.SymbolInfo{
		Pair: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Tradeable: true,
		StepSize: "0.001", TickSize: "0.1", MinQty: "0.001", MaxQty: "1000", MinNotional: "5",
	})
}
