package common

import "encoding/json"

// Venue identifies a supported derivatives exchange.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueKuCoin  Venue = "kucoin"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the inverse side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide denotes the direction of a futures position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// EntrySide maps a position direction to the order side that opens it.
func (p PositionSide) EntrySide() Side {
	if p == PositionShort {
		return SideSell
	}
	return SideBuy
}

// CloseSide maps a position direction to the order side that reduces it.
func (p PositionSide) CloseSide() Side {
	return p.EntrySide().Opposite()
}

// OrderType denotes futures order types.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// IsTrigger reports whether the order type fires off a trigger price.
func (t OrderType) IsTrigger() bool {
	return t == OrderTypeStopMarket || t == OrderTypeTakeProfitMarket
}

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFGTX TimeInForce = "GTX" // Post Only / Maker Only
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// WorkingTypeMarkPrice makes trigger orders evaluate against mark price.
const WorkingTypeMarkPrice = "MARK_PRICE"

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Pair          string
	Side          Side
	Type          OrderType
	Qty           float64
	Price         float64 // required for LIMIT
	StopPrice     float64 // required for trigger types
	TimeInForce   TimeInForce
	ClientOrderID string
	ReduceOnly    bool
	ClosePosition bool // close entire position; qty ignored by the venue
	WorkingType   string
	PriceProtect  bool
}

// OrderResult returns the exchange ack plus the raw payload for traceability.
type OrderResult struct {
	ExchangeOrderID string
	ClientOrderID   string
	Status          OrderStatus
	AvgPrice        float64
	ExecutedQty     float64
	OrigQty         float64
	UpdateTime      int64 // milliseconds since epoch
	Raw             json.RawMessage
}

// OrderInfo describes an order as reported by the exchange read paths.
type OrderInfo struct {
	ExchangeOrderID string
	ClientOrderID   string
	Pair            string
	Side            Side
	Type            OrderType
	Price           float64
	StopPrice       float64
	OrigQty         float64
	ExecutedQty     float64
	Status          OrderStatus
	ReduceOnly      bool
	UpdateTime      int64
}

// Position describes a live futures position.
type Position struct {
	Pair             string
	PositionAmt      float64 // signed: >0 long, <0 short
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
}

// Direction derives the position side from the signed amount.
func (p Position) Direction() PositionSide {
	if p.PositionAmt < 0 {
		return PositionShort
	}
	return PositionLong
}

// IsOpen reports whether the position has non-zero size.
func (p Position) IsOpen() bool {
	return p.PositionAmt != 0
}

// Balance describes a single asset balance.
type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

// BookLevel is a single order book level.
type BookLevel struct {
	Price float64
	Qty   float64
}

// OrderBook is a depth snapshot. Bids descend, asks ascend.
type OrderBook struct {
	Pair string
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid returns the top bid price, or 0 when that side is empty.
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when that side is empty.
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// SymbolInfo is one entry of an exchange's tradeable-symbol catalog.
// Filter values stay as strings so precision survives until rounding time.
type SymbolInfo struct {
	Pair        string // venue-native pair, e.g. BTCUSDT or XBTUSDTM
	BaseAsset   string // canonical base coin, e.g. BTC (already de-aliased)
	QuoteAsset  string
	Tradeable   bool
	StepSize    string
	TickSize    string
	MinQty      string
	MaxQty      string
	MinNotional string
}
