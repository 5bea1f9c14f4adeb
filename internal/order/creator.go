// Package order builds entry orders and their protective bracket ladder.
package order

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"signal-core/pkg/exchanges/common"
)

// Creator submits entries and brackets through a validating exchange client.
type Creator struct {
	Ex         common.Exchange
	Filters    common.FiltersFunc
	ProtectPct float64 // default SL/TP distance when the signal omits one
}

// NewCreator wires a creator; protectPct ≤ 0 falls back to 5%.
func NewCreator(ex common.Exchange, filters common.FiltersFunc, protectPct float64) *Creator {
	if protectPct <= 0 {
		protectPct = 0.05
	}
	return &Creator{Ex: ex, Filters: filters, ProtectPct: protectPct}
}

// EntryParams describes the single entry order of a signal.
type EntryParams struct {
	Pair          string
	Position      common.PositionSide
	Type          common.OrderType // MARKET or LIMIT
	Qty           float64
	Price         float64 // LIMIT only
	ClientOrderID string
}

// PlaceEntry submits the entry order. A client order id is generated when the
// signal did not carry one, so retries stay idempotent on the venue side.
func (c *Creator) PlaceEntry(ctx context.Context, p EntryParams) (*common.OrderResult, error) {
	clientID := p.ClientOrderID
	if clientID == "" {
		clientID = "sc-" + uuid.NewString()
	}
	req := common.OrderRequest{
		Pair:          p.Pair,
		Side:          p.Position.EntrySide(),
		Type:          p.Type,
		Qty:           p.Qty,
		ClientOrderID: clientID,
	}
	if p.Type == common.OrderTypeLimit {
		req.Price = p.Price
		req.TimeInForce = common.TIFGTC
	}
	res, err := c.Ex.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ entry %s %s %s qty=%v id=%s", p.Pair, req.Side, p.Type, p.Qty, res.ExchangeOrderID)
	return res, nil
}

// DefaultStop returns the fallback stop price for an entry without an
// explicit SL: LONG entry·(1−pct), SHORT entry·(1+pct).
func (c *Creator) DefaultStop(entry float64, pos common.PositionSide) float64 {
	if pos == common.PositionLong {
		return entry * (1 - c.ProtectPct)
	}
	return entry * (1 + c.ProtectPct)
}

// DefaultTake mirrors DefaultStop on the profit side.
func (c *Creator) DefaultTake(entry float64, pos common.PositionSide) float64 {
	if pos == common.PositionLong {
		return entry * (1 + c.ProtectPct)
	}
	return entry * (1 - c.ProtectPct)
}

// PlaceStopLoss submits a reduce-only STOP_MARKET on the closing side.
func (c *Creator) PlaceStopLoss(ctx context.Context, pair string, pos common.PositionSide, qty, stopPrice float64) (*common.OrderResult, error) {
	res, err := c.Ex.CreateOrder(ctx, common.OrderRequest{
		Pair:          pair,
		Side:          pos.CloseSide(),
		Type:          common.OrderTypeStopMarket,
		Qty:           qty,
		StopPrice:     stopPrice,
		ReduceOnly:    true,
		ClientOrderID: "sc-sl-" + uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("place stop loss: %w", err)
	}
	log.Printf("✅ stop loss %s @ %v id=%s", pair, stopPrice, res.ExchangeOrderID)
	return res, nil
}

// PlaceTakeProfits submits one reduce-only TAKE_PROFIT_MARKET per ladder
// level. A single TP covers the full size; multiple TPs split it equally,
// each leg step-aligned. Legs rounded to zero are skipped.
func (c *Creator) PlaceTakeProfits(ctx context.Context, pair string, pos common.PositionSide, totalQty float64, tps []float64) ([]*common.OrderResult, error) {
	if len(tps) == 0 {
		return nil, nil
	}
	filters, err := c.Filters(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("filters for %s: %w", pair, err)
	}
	legQty := totalQty
	if len(tps) > 1 {
		legQty = filters.RoundQty(totalQty / float64(len(tps)))
	}

	out := make([]*common.OrderResult, 0, len(tps))
	for i, tp := range tps {
		if legQty <= 0 {
			log.Printf("⚠️ tp leg %d for %s rounds to zero, skipping", i+1, pair)
			continue
		}
		res, err := c.Ex.CreateOrder(ctx, common.OrderRequest{
			Pair:          pair,
			Side:          pos.CloseSide(),
			Type:          common.OrderTypeTakeProfitMarket,
			Qty:           legQty,
			StopPrice:     tp,
			ReduceOnly:    true,
			ClientOrderID: "sc-tp-" + uuid.NewString(),
		})
		if err != nil {
			return out, fmt.Errorf("place take profit %d: %w", i+1, err)
		}
		log.Printf("✅ take profit %d/%d %s @ %v id=%s", i+1, len(tps), pair, tp, res.ExchangeOrderID)
		out = append(out, res)
	}
	return out, nil
}

// CancelOrder forwards to the exchange; the validating client already treats
// an unknown order id as success.
func (c *Creator) CancelOrder(ctx context.Context, pair, orderID string) error {
	return c.Ex.CancelOrder(ctx, pair, orderID)
}
