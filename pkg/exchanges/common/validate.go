package common

import (
	"context"
	"log"
	"time"
)

// FiltersFunc resolves the precision filters for a pair. Usually backed by
// the symbol resolver's TTL cache.
type FiltersFunc func(ctx context.Context, pair string) (Filters, error)

// Validator wraps an Exchange and enforces pre-submission checks: quantity
// bounds, step and tick alignment, minimum notional against a reference
// price, trigger-order conventions, and the maker-price preflight for
// non-reduce-only LIMIT orders.
type Validator struct {
	Exchange
	Filters         FiltersFunc
	MakerTickOffset int
	Retry           RetryPolicy

	// MarkPriceAttempts bounds the short-delay retry used only for the
	// notional reference price of MARKET orders.
	MarkPriceAttempts int
	MarkPriceDelay    time.Duration
}

var _ Exchange = (*Validator)(nil)

// NewValidator builds a validator with default retry and preflight settings.
func NewValidator(ex Exchange, filters FiltersFunc, makerTickOffset int) *Validator {
	if makerTickOffset <= 0 {
		makerTickOffset = 3
	}
	return &Validator{
		Exchange:          ex,
		Filters:           filters,
		MakerTickOffset:   makerTickOffset,
		Retry:             DefaultRetry(),
		MarkPriceAttempts: 3,
		MarkPriceDelay:    500 * time.Millisecond,
	}
}

// CreateOrder validates then submits. The returned request in the result path
// may differ from the input when the maker preflight adjusted the price.
func (v *Validator) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	f, err := v.Filters(ctx, req.Pair)
	if err != nil {
		return nil, err
	}

	if req.Qty <= 0 && !req.ClosePosition {
		return nil, E(CodeValidation, "%s: quantity must be positive, got %v", req.Pair, req.Qty)
	}
	if req.Qty > 0 && !f.QtyAligned(req.Qty) {
		return nil, E(CodeValidation, "%s: qty %v violates step/bounds (step=%s min=%s max=%s)",
			req.Pair, req.Qty, f.StepSize, f.MinQty, f.MaxQty)
	}

	switch req.Type {
	case OrderTypeLimit:
		if req.Price <= 0 {
			return nil, E(CodeValidation, "%s: LIMIT order requires a price", req.Pair)
		}
		if !req.ReduceOnly {
			if adjusted, changed, perr := v.makerPreflight(ctx, f, req.Side, req.Price); perr != nil {
				log.Printf("⚠️ maker preflight skipped for %s: %v", req.Pair, perr)
			} else if changed {
				log.Printf("📊 maker preflight %s: price %v -> %v", req.Pair, req.Price, adjusted)
				req.Price = adjusted
			}
		}
		if !f.PriceAligned(req.Price) {
			req.Price = f.RoundPrice(req.Price)
		}
		if !f.NotionalOK(req.Qty, req.Price) {
			return nil, E(CodeInsufficientNotional, "%s: notional %v×%v below minimum %s",
				req.Pair, req.Qty, req.Price, f.MinNotional)
		}
		if req.TimeInForce == "" {
			req.TimeInForce = TIFGTC
		}

	case OrderTypeMarket:
		ref, merr := v.markPriceWithRetry(ctx, req.Pair)
		if merr != nil {
			return nil, merr
		}
		if !f.NotionalOK(req.Qty, ref) {
			return nil, E(CodeInsufficientNotional, "%s: notional %v×%v below minimum %s",
				req.Pair, req.Qty, ref, f.MinNotional)
		}

	case OrderTypeStopMarket, OrderTypeTakeProfitMarket:
		if req.StopPrice <= 0 {
			return nil, E(CodeValidation, "%s: %s requires a stop price", req.Pair, req.Type)
		}
		req.StopPrice = f.RoundPrice(req.StopPrice)
		req.WorkingType = WorkingTypeMarkPrice
		req.PriceProtect = true
		// Triggers are never post-only.
		if req.TimeInForce == "" || req.TimeInForce == TIFGTX {
			req.TimeInForce = TIFGTC
		}

	default:
		return nil, E(CodeValidation, "%s: unsupported order type %q", req.Pair, req.Type)
	}

	var result *OrderResult
	err = v.Retry.Do(ctx, "create order "+req.Pair, func(ctx context.Context) error {
		var cerr error
		result, cerr = v.Exchange.CreateOrder(ctx, req)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrder is idempotent: a venue-side "order not found" counts as done.
func (v *Validator) CancelOrder(ctx context.Context, pair, orderID string) error {
	err := v.Retry.Do(ctx, "cancel order "+pair, func(ctx context.Context) error {
		return v.Exchange.CancelOrder(ctx, pair, orderID)
	})
	if err != nil && IsCode(err, CodeOrderNotFound) {
		log.Printf("✓ cancel %s %s: already gone", pair, orderID)
		return nil
	}
	return err
}

// makerPreflight moves a would-cross LIMIT price to the passive side of the
// book: best bid − N·tick for BUY, best ask + N·tick for SELL.
func (v *Validator) makerPreflight(ctx context.Context, f Filters, side Side, price float64) (float64, bool, error) {
	book, err := v.Exchange.GetOrderBook(ctx, f.Pair, 5)
	if err != nil {
		return price, false, err
	}
	tick, _ := f.TickSize.Float64()
	if tick == 0 {
		return price, false, nil
	}
	offset := float64(v.MakerTickOffset) * tick

	switch side {
	case SideBuy:
		if ask := book.BestAsk(); ask > 0 && price >= ask {
			if bid := book.BestBid(); bid > 0 {
				return f.RoundPrice(bid - offset), true, nil
			}
		}
	case SideSell:
		if bid := book.BestBid(); bid > 0 && price <= bid {
			if ask := book.BestAsk(); ask > 0 {
				return f.RoundPrice(ask + offset), true, nil
			}
		}
	}
	return price, false, nil
}

func (v *Validator) markPriceWithRetry(ctx context.Context, pair string) (float64, error) {
	attempts := v.MarkPriceAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		price, err := v.Exchange.GetMarkPrice(ctx, pair)
		if err == nil && price > 0 {
			return price, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return 0, Wrap(CodeTimeout, ctx.Err(), "mark price fetch cancelled for %s", pair)
		case <-time.After(v.MarkPriceDelay):
		}
	}
	return 0, Wrap(CodeMarkPriceUnavailable, lastErr, "no mark price for %s after %d attempts", pair, attempts)
}
