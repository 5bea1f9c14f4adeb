// Package followup turns trader follow-up alerts into actions against the
// trades they reference: stop moves, partial take-profits, and closes.
package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/locks"
	"signal-core/internal/router"
	"signal-core/internal/signal"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// DefaultTolerance is the timestamp window for alert↔trade matching.
const DefaultTolerance = 5 * time.Minute

// Processor matches alerts to trades and dispatches the parsed action.
type Processor struct {
	DB        *db.Database
	Router    *router.Router
	Locks     *locks.Registry
	Tolerance time.Duration
}

// NewProcessor wires a processor; tolerance ≤ 0 uses the default window.
func NewProcessor(database *db.Database, r *router.Router, reg *locks.Registry, tolerance time.Duration) *Processor {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Processor{DB: database, Router: r, Locks: reg, Tolerance: tolerance}
}

// Process persists the alert, resolves its related trades, and dispatches
// the action on each. The stored alert ends PROCESSED, SKIPPED, or FAILED.
func (p *Processor) Process(ctx context.Context, a *signal.Alert) error {
	row := &db.Alert{
		TradeRef:  a.TradeRef,
		DiscordID: a.DiscordID,
		Trader:    a.Trader,
		Content:   a.Content,
		Status:    db.AlertPending,
		AlertAt:   a.Timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if a.Parsed != nil {
		if b, err := json.Marshal(a.Parsed); err == nil {
			row.ParsedAction = string(b)
		}
	}
	if err := p.DB.CreateAlert(ctx, row); err != nil {
		return common.Wrap(common.CodeDatabase, err, "persist alert for %s", a.TradeRef)
	}

	action := signal.Classify(a)
	if action == signal.ActionUnknown {
		log.Printf("⚠️ alert %d: unrecognized action in %q", row.ID, a.Content)
		return p.DB.SetAlertStatus(ctx, row.ID, db.AlertSkipped)
	}

	related, err := p.MatchTrades(ctx, a)
	if err != nil {
		_ = p.DB.SetAlertStatus(ctx, row.ID, db.AlertFailed)
		return err
	}
	if len(related) == 0 {
		log.Printf("⚠️ alert %d: no trade matches %s", row.ID, a.TradeRef)
		return p.DB.SetAlertStatus(ctx, row.ID, db.AlertFailed)
	}

	var dispatched, skipped int
	var firstErr error
	for i := range related {
		t := &related[i]
		ok, err := p.dispatchOne(ctx, t, action, a)
		switch {
		case err != nil:
			log.Printf("❌ alert %d: trade %d %s: %v", row.ID, t.ID, action, err)
			if firstErr == nil {
				firstErr = err
			}
		case ok:
			dispatched++
		default:
			skipped++
		}
	}

	status := db.AlertProcessed
	if firstErr != nil && dispatched == 0 {
		status = db.AlertFailed
	} else if dispatched == 0 && skipped > 0 {
		status = db.AlertSkipped
	}
	if err := p.DB.SetAlertStatus(ctx, row.ID, status); err != nil {
		return err
	}
	return firstErr
}

// MatchTrades returns the trades an alert refers to: open trades of the
// alert's coin inside the timestamp window, narrowed by trade group when the
// parse carries one, with a final fallback to the exact source message id.
func (p *Processor) MatchTrades(ctx context.Context, a *signal.Alert) ([]db.Trade, error) {
	coin := ""
	if a.Parsed != nil {
		coin = a.Parsed.Coin
	}
	if coin == "" {
		coin = signal.ExtractCoin(a.Content)
	}

	var related []db.Trade
	if coin != "" {
		candidates, err := p.DB.OpenTradesByCoin(ctx, coin)
		if err != nil {
			return nil, err
		}
		for _, t := range candidates {
			if !p.inWindow(a.Timestamp, &t) {
				continue
			}
			if a.Parsed != nil && a.Parsed.TradeGroupID != "" &&
				!strings.Contains(t.ExchangeResponse, a.Parsed.TradeGroupID) &&
				t.SourceMessageID != a.Parsed.TradeGroupID {
				continue
			}
			related = append(related, t)
		}
	}
	if len(related) > 0 {
		return related, nil
	}

	t, err := p.DB.GetTradeBySource(ctx, a.TradeRef)
	if err != nil {
		if errors.Is(err, db.ErrTradeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []db.Trade{*t}, nil
}

// inWindow accepts a candidate whose own timestamp or whose exchange
// updateTime sits within the tolerance of the alert.
func (p *Processor) inWindow(alertAt time.Time, t *db.Trade) bool {
	if absDuration(alertAt.Sub(t.CreatedAt)) <= p.Tolerance {
		return true
	}
	if ut := updateTimeFromResponse(t.ExchangeResponse); !ut.IsZero() {
		return absDuration(alertAt.Sub(ut)) <= p.Tolerance
	}
	return false
}

// dispatchOne executes the action against one trade, after redirecting a
// merged secondary onto its primary. Returns false when preconditions rule
// the action out.
func (p *Processor) dispatchOne(ctx context.Context, t *db.Trade, action string, a *signal.Alert) (bool, error) {
	eng := p.Router.EngineForVenue(t.Exchange)
	if eng == nil {
		return false, fmt.Errorf("no engine for venue %s", t.Exchange)
	}

	primary, err := eng.ResolvePrimary(ctx, t)
	if err != nil {
		return false, err
	}
	if primary.ID != t.ID {
		log.Printf("🔄 alert action %s redirected_from_trade_id=%d to trade %d", action, t.ID, primary.ID)
		t = primary
	}

	unlock := p.Locks.Lock(t.ID)
	defer unlock()

	// Re-read under the lock; a concurrent follow-up may have closed it.
	t, err = p.DB.GetTrade(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if t.Status == db.TradeClosed || t.Status == db.TradeCancelled || t.Status == db.TradeFailed {
		log.Printf("✓ trade %d already %s, %s skipped", t.ID, t.Status, action)
		return false, nil
	}

	pair, filters, err := eng.Resolver.Resolve(ctx, t.Coin)
	if err != nil {
		return false, err
	}
	side := common.PositionSide(t.Side)

	switch action {
	case signal.ActionBreakEven:
		return p.replaceStop(ctx, eng, t, pair, side, eng.Pos.BreakevenPrice(t))

	case signal.ActionStopLossUpdate:
		price := 0.0
		if a.Parsed != nil {
			price = a.Parsed.StopPrice
		}
		if price <= 0 {
			log.Printf("⚠️ trade %d: stop loss update without a price, skipped", t.ID)
			return false, nil
		}
		return p.replaceStop(ctx, eng, t, pair, side, price)

	case signal.ActionStopLossHit, signal.ActionProfitClose:
		open, err := eng.Pos.IsPositionOpen(ctx, pair, side)
		if err != nil {
			return false, err
		}
		if !open {
			log.Printf("✓ trade %d: no live position, close skipped", t.ID)
			return false, nil
		}
		if _, err := eng.Pos.CloseAtMarket(ctx, t, action, 100); err != nil {
			return false, err
		}
		return true, nil

	case signal.ActionTakeProfit:
		return p.partialTakeProfit(ctx, eng, t, pair, filters, side, a)

	case signal.ActionLimitCancelled:
		if t.ExchangeOrderID == nil {
			log.Printf("⚠️ trade %d: no entry order id to cancel, skipped", t.ID)
			return false, nil
		}
		if err := eng.Creator.CancelOrder(ctx, pair, *t.ExchangeOrderID); err != nil {
			return false, err
		}
		if err := p.DB.UpdateTradeStatus(ctx, t.ID, db.TradeCancelled); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (p *Processor) replaceStop(ctx context.Context, eng *engine.Engine, t *db.Trade, pair string, side common.PositionSide, price float64) (bool, error) {
	open, err := eng.Pos.IsPositionOpen(ctx, pair, side)
	if err != nil {
		return false, err
	}
	if !open {
		log.Printf("✓ trade %d: no live position, stop move skipped", t.ID)
		return false, nil
	}
	current := ""
	if t.StopLossOrderID != nil {
		current = *t.StopLossOrderID
	}
	newID, err := eng.SL.UpdateStopLoss(ctx, pair, side, t.PositionSize, current, price)
	if err != nil {
		return false, err
	}
	if err := p.DB.SetStopLossOrder(ctx, t.ID, &newID); err != nil {
		return false, err
	}
	return true, nil
}

// partialTakeProfit submits a reduce-only LIMIT for the requested slice.
// Without an explicit percentage the position splits evenly over the
// remaining TP ladder on the venue.
func (p *Processor) partialTakeProfit(ctx context.Context, eng *engine.Engine, t *db.Trade, pair string, filters common.Filters, side common.PositionSide, a *signal.Alert) (bool, error) {
	price := 0.0
	pct := 0.0
	if a.Parsed != nil {
		price = a.Parsed.TPPrice
		pct = a.Parsed.ClosePercent
	}
	if price <= 0 {
		log.Printf("⚠️ trade %d: take profit without a price, skipped", t.ID)
		return false, nil
	}
	if pct <= 0 {
		open, err := eng.Ex.GetOpenOrders(ctx, pair)
		if err != nil {
			return false, err
		}
		ladder := 0
		for _, o := range open {
			if o.Type == common.OrderTypeTakeProfitMarket && o.Side == side.CloseSide() {
				ladder++
			}
		}
		if ladder < 1 {
			ladder = 1
		}
		pct = 100 / float64(ladder)
	}
	if pct > 100 {
		pct = 100
	}

	qty := filters.RoundQty(t.PositionSize * pct / 100)
	if qty <= 0 {
		return false, common.E(common.CodeValidation, "%s: take profit slice rounds to zero", pair)
	}
	if _, err := eng.Ex.CreateOrder(ctx, common.OrderRequest{
		Pair:        pair,
		Side:        side.CloseSide(),
		Type:        common.OrderTypeLimit,
		Qty:         qty,
		Price:       price,
		TimeInForce: common.TIFGTC,
		ReduceOnly:  true,
	}); err != nil {
		return false, err
	}
	log.Printf("✅ trade %d: partial take profit %v%% at %v", t.ID, pct, price)

	if pct < 100 {
		if err := p.DB.UpdateTradeStatus(ctx, t.ID, db.TradePartiallyFilled); err != nil {
			return false, err
		}
	}
	return true, nil
}

func updateTimeFromResponse(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	var body struct {
		UpdateTime int64 `json:"updateTime"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.UpdateTime <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(body.UpdateTime).UTC()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
