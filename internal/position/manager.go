// Package position owns live-position actions: open checks, market closes
// with bracket hygiene, and breakeven math for stop moves.
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/risk"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// ResolveFunc maps a coin to its venue pair and filters.
type ResolveFunc func(ctx context.Context, coin string) (string, common.Filters, error)

// Manager executes closes against one venue and keeps the trade row honest.
type Manager struct {
	Ex      common.Exchange
	DB      *db.Database
	Resolve ResolveFunc
	Bus     *events.Bus
	FeeRate float64 // per-side taker fee used for breakeven
}

// NewManager wires a position manager; feeRate ≤ 0 defaults to 0.02%.
func NewManager(ex common.Exchange, database *db.Database, resolve ResolveFunc, bus *events.Bus, feeRate float64) *Manager {
	if feeRate <= 0 {
		feeRate = 0.0002
	}
	return &Manager{Ex: ex, DB: database, Resolve: resolve, Bus: bus, FeeRate: feeRate}
}

// IsPositionOpen reports whether a live position exists for the pair on the
// given side. Non-zero position amount counts as open.
func (m *Manager) IsPositionOpen(ctx context.Context, pair string, side common.PositionSide) (bool, error) {
	positions, err := m.Ex.GetPositions(ctx, pair)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.IsOpen() && p.Direction() == side {
			return true, nil
		}
	}
	return false, nil
}

// BreakevenPrice is the entry adjusted by two taker fees: the price at which
// closing the position costs nothing.
func (m *Manager) BreakevenPrice(t *db.Trade) float64 {
	if t.Side == string(common.PositionShort) {
		return t.EntryPrice * (1 - 2*m.FeeRate)
	}
	return t.EntryPrice * (1 + 2*m.FeeRate)
}

// CloseAtMarket closes closePercent of the trade's position reduce-only at
// market. A 100% close cancels all bracket orders first so nothing fills
// against the exit. Already-closed trades are a no-op success.
func (m *Manager) CloseAtMarket(ctx context.Context, t *db.Trade, reason string, closePercent float64) (*common.OrderResult, error) {
	if closePercent <= 0 || closePercent > 100 {
		return nil, common.E(common.CodeValidation, "close percent must be in (0,100], got %v", closePercent)
	}
	if t.Status == db.TradeClosed || t.Status == db.TradeCancelled {
		log.Printf("✓ trade %d already %s, close skipped", t.ID, t.Status)
		return nil, nil
	}

	pair, filters, err := m.Resolve(ctx, t.Coin)
	if err != nil {
		return nil, err
	}
	side := common.PositionSide(t.Side)

	size, err := m.effectiveSize(ctx, t, pair, side)
	if err != nil {
		return nil, err
	}

	if closePercent == 100 {
		if err := risk.CancelAllBrackets(ctx, m.Ex, pair, side); err != nil {
			return nil, fmt.Errorf("cancel brackets before close: %w", err)
		}
	}

	qty := filters.RoundQty(size * closePercent / 100)
	if qty <= 0 {
		return nil, common.E(common.CodeValidation, "%s: close quantity rounds to zero (size=%v pct=%v)", pair, size, closePercent)
	}

	res, err := m.Ex.ClosePosition(ctx, pair, qty, side.CloseSide())
	if err != nil {
		return nil, err
	}

	exit := m.exitPrice(ctx, t, pair, res, qty)
	status := db.TradePartiallyFilled
	if closePercent == 100 {
		status = db.TradeClosed
	}
	var exitPtr *float64
	if exit > 0 {
		exitPtr = &exit
	}
	if err := m.DB.CloseTrade(ctx, t.ID, status, exitPtr); err != nil {
		return res, fmt.Errorf("persist close for trade %d: %w", t.ID, err)
	}
	log.Printf("✅ closed %v%% of %s trade %d (%s) at %v", closePercent, pair, t.ID, reason, exit)

	if m.Bus != nil {
		m.Bus.Publish(events.EventTradeClosed, events.TradeEvent{
			TradeID: t.ID, Trader: t.Trader, Exchange: t.Exchange, Coin: t.Coin,
			Side: t.Side, Size: qty, Price: exit, Reason: reason, Timestamp: time.Now().UTC(),
		})
	}
	return res, nil
}

// CloseAll market-closes every open or partially filled trade. Used on
// operator request or shutdown drain.
func (m *Manager) CloseAll(ctx context.Context, reason string) error {
	trades, err := m.DB.OpenTrades(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for i := range trades {
		t := trades[i]
		if t.Exchange != string(m.Ex.Name()) {
			continue
		}
		if _, err := m.CloseAtMarket(ctx, &t, reason, 100); err != nil {
			log.Printf("❌ close all: trade %d: %v", t.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// effectiveSize resolves the quantity to close: the trade record first, the
// persisted exchange response second, the live position last.
func (m *Manager) effectiveSize(ctx context.Context, t *db.Trade, pair string, side common.PositionSide) (float64, error) {
	if t.PositionSize > 0 {
		return t.PositionSize, nil
	}
	if s := sizeFromResponse(t.ExchangeResponse); s > 0 {
		return s, nil
	}
	positions, err := m.Ex.GetPositions(ctx, pair)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.IsOpen() && p.Direction() == side {
			return abs(p.PositionAmt), nil
		}
	}
	return 0, common.E(common.CodePositionNotFound, "no live position for %s %s", pair, side)
}

// exitPrice takes the fill price from the close response, falling back to a
// PnL-derived estimate off the live mark when the venue omits it.
func (m *Manager) exitPrice(ctx context.Context, t *db.Trade, pair string, res *common.OrderResult, qty float64) float64 {
	if res != nil && res.AvgPrice > 0 {
		return res.AvgPrice
	}
	positions, err := m.Ex.GetPositions(ctx, pair)
	if err != nil || len(positions) == 0 {
		return 0
	}
	p := positions[0]
	if p.EntryPrice <= 0 || qty <= 0 {
		return 0
	}
	// exit ≈ entry ± pnl/qty, sign by side
	perUnit := p.UnrealizedProfit / qty
	if t.Side == string(common.PositionShort) {
		return p.EntryPrice - perUnit
	}
	return p.EntryPrice + perUnit
}

func sizeFromResponse(raw string) float64 {
	if raw == "" {
		return 0
	}
	var body struct {
		OrigQty string  `json:"origQty"`
		Size    float64 `json:"size"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return 0
	}
	if body.OrigQty != "" {
		if v, err := strconv.ParseFloat(body.OrigQty, 64); err == nil {
			return v
		}
	}
	return body.Size
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
