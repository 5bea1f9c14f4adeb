package common

import "context"

// Exchange abstracts a derivatives trading venue. Implementations own wire
// formats and signing; callers see normalized types and structured errors.
type Exchange interface {
	// Name returns the venue identifier.
	Name() Venue

	// CreateOrder places an order. The request is assumed to be already
	// validated and precision-aligned (see Validator).
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels by exchange order id. Implementations map a
	// venue-side "unknown order" into ErrOrderNotFound so callers can treat
	// the cancel as idempotent.
	CancelOrder(ctx context.Context, pair, orderID string) error

	// GetOrderStatus fetches a single order.
	GetOrderStatus(ctx context.Context, pair, orderID string) (*OrderInfo, error)

	// GetOpenOrders lists open orders; empty pair means all pairs.
	GetOpenOrders(ctx context.Context, pair string) ([]OrderInfo, error)

	// GetPositions lists live positions; empty pair means all pairs.
	GetPositions(ctx context.Context, pair string) ([]Position, error)

	// GetBalances lists account balances.
	GetBalances(ctx context.Context) ([]Balance, error)

	// GetMarkPrice returns the venue mark price for a pair.
	GetMarkPrice(ctx context.Context, pair string) (float64, error)

	// GetOrderBook returns a depth snapshot.
	GetOrderBook(ctx context.Context, pair string, depth int) (*OrderBook, error)

	// GetCurrentPrices returns last prices for the given pairs.
	GetCurrentPrices(ctx context.Context, pairs []string) (map[string]float64, error)

	// ClosePosition submits a reduce-only market order against an open position.
	ClosePosition(ctx context.Context, pair string, qty float64, side Side) (*OrderResult, error)

	// SetLeverage configures per-pair leverage, clamped to venue limits.
	SetLeverage(ctx context.Context, pair string, leverage int) error

	// FetchSymbols downloads the tradeable-symbol catalog.
	FetchSymbols(ctx context.Context) ([]SymbolInfo, error)

	// RequiresLeverageInit reports whether leverage must be configured on a
	// pair before its first order.
	RequiresLeverageInit() bool
}
