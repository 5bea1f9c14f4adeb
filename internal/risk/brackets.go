// Package risk keeps every open position protected: the bracket managers
// enforce the single-active-SL/TP invariant and the auditor sweeps live
// positions for missing or distressed brackets.
package risk

import (
	"context"
	"fmt"
	"log"

	"signal-core/internal/order"
	"signal-core/pkg/exchanges/common"
)

// StopLossManager replaces protective stops with cancel-then-create
// discipline: a cancel failure leaves the original stop untouched.
type StopLossManager struct {
	Ex      common.Exchange
	Creator *order.Creator
}

// NewStopLossManager builds a manager over the validating client.
func NewStopLossManager(ex common.Exchange, creator *order.Creator) *StopLossManager {
	return &StopLossManager{Ex: ex, Creator: creator}
}

// EnsureStopLoss guarantees exactly one stop order for the position. The
// external price wins when supplied; otherwise the default distance from
// entry applies. Returns the new order id.
func (m *StopLossManager) EnsureStopLoss(ctx context.Context, pair string, pos common.PositionSide, size, entry, external float64) (string, error) {
	target := external
	if target <= 0 {
		target = m.Creator.DefaultStop(entry, pos)
	}
	if err := cancelBrackets(ctx, m.Ex, pair, pos, common.OrderTypeStopMarket); err != nil {
		return "", fmt.Errorf("cancel existing stop loss: %w", err)
	}
	res, err := m.Creator.PlaceStopLoss(ctx, pair, pos, size, target)
	if err != nil {
		return "", err
	}
	return res.ExchangeOrderID, nil
}

// UpdateStopLoss moves a known stop order to a new price. The stored order
// id is cancelled first; strict ordering, create never precedes cancel.
func (m *StopLossManager) UpdateStopLoss(ctx context.Context, pair string, pos common.PositionSide, size float64, currentID string, newPrice float64) (string, error) {
	if currentID != "" {
		if err := m.Creator.CancelOrder(ctx, pair, currentID); err != nil {
			return "", fmt.Errorf("cancel stop loss %s: %w", currentID, err)
		}
	}
	res, err := m.Creator.PlaceStopLoss(ctx, pair, pos, size, newPrice)
	if err != nil {
		return "", err
	}
	log.Printf("🔄 stop loss %s moved to %v (%s -> %s)", pair, newPrice, currentID, res.ExchangeOrderID)
	return res.ExchangeOrderID, nil
}

// TakeProfitManager mirrors the stop-loss discipline for the TP ladder.
type TakeProfitManager struct {
	Ex      common.Exchange
	Creator *order.Creator
}

// NewTakeProfitManager builds a manager over the validating client.
func NewTakeProfitManager(ex common.Exchange, creator *order.Creator) *TakeProfitManager {
	return &TakeProfitManager{Ex: ex, Creator: creator}
}

// EnsureTakeProfits guarantees the TP ladder exists for the position. When
// the signal omitted targets, a single default-distance TP is used.
func (m *TakeProfitManager) EnsureTakeProfits(ctx context.Context, pair string, pos common.PositionSide, size, entry float64, targets []float64) ([]string, error) {
	if len(targets) == 0 {
		targets = []float64{m.Creator.DefaultTake(entry, pos)}
	}
	if err := cancelBrackets(ctx, m.Ex, pair, pos, common.OrderTypeTakeProfitMarket); err != nil {
		return nil, fmt.Errorf("cancel existing take profits: %w", err)
	}
	results, err := m.Creator.PlaceTakeProfits(ctx, pair, pos, size, targets)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ExchangeOrderID)
	}
	return ids, nil
}

// cancelBrackets cancels all open reduce-side orders of one trigger type for
// the pair. Any cancel failure aborts so the caller never double-brackets.
func cancelBrackets(ctx context.Context, ex common.Exchange, pair string, pos common.PositionSide, t common.OrderType) error {
	open, err := ex.GetOpenOrders(ctx, pair)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.Type != t || o.Side != pos.CloseSide() {
			continue
		}
		if err := ex.CancelOrder(ctx, pair, o.ExchangeOrderID); err != nil {
			return err
		}
	}
	return nil
}

// CancelAllBrackets removes both stop and take-profit orders for the pair.
// Used before a 100% close so nothing double-fills against the exit.
func CancelAllBrackets(ctx context.Context, ex common.Exchange, pair string, pos common.PositionSide) error {
	if err := cancelBrackets(ctx, ex, pair, pos, common.OrderTypeStopMarket); err != nil {
		return err
	}
	return cancelBrackets(ctx, ex, pair, pos, common.OrderTypeTakeProfitMarket)
}
