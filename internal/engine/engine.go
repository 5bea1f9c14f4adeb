// Package engine turns normalized signals into venue orders: cooldown
// gating, price-range decisions, sizing, entry submission, and the
// protective bracket ladder.
package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/locks"
	"signal-core/internal/order"
	"signal-core/internal/position"
	"signal-core/internal/risk"
	"signal-core/internal/signal"
	"signal-core/pkg/cache"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// Params carries the engine's tunables.
type Params struct {
	TradeAmount float64 // USDT notional per entry
	Leverage    int
	Cooldown    time.Duration // per (exchange, coin)
	DryRun      bool
}

// Resolver is the slice of the symbol resolver the engine needs.
type Resolver interface {
	Resolve(ctx context.Context, coin string) (string, common.Filters, error)
}

// Engine executes signals against one venue.
type Engine struct {
	Ex       common.Exchange
	Resolver Resolver
	Creator  *order.Creator
	SL       *risk.StopLossManager
	TP       *risk.TakeProfitManager
	Pos      *position.Manager
	DB       *db.Database
	Bus      *events.Bus
	Locks    *locks.Registry
	Prices   *cache.PriceCache // optional; REST fallback when cold
	Params   Params

	cooldown *cooldownMap
}

// New wires an engine for one venue.
func New(ex common.Exchange, resolver Resolver, creator *order.Creator, sl *risk.StopLossManager, tp *risk.TakeProfitManager, pos *position.Manager, database *db.Database, bus *events.Bus, reg *locks.Registry, prices *cache.PriceCache, params Params) *Engine {
	return &Engine{
		Ex: ex, Resolver: resolver, Creator: creator, SL: sl, TP: tp, Pos: pos,
		DB: database, Bus: bus, Locks: reg, Prices: prices, Params: params,
		cooldown: newCooldownMap(),
	}
}

// Venue returns the venue this engine trades on.
func (e *Engine) Venue() common.Venue { return e.Ex.Name() }

// HandleSignal runs the full entry sequence and returns the persisted trade.
// The trade row always exists afterwards, marked FAILED when any step before
// the entry succeeds fails; bracket failures leave the trade OPEN for the
// auditor to repair.
func (e *Engine) HandleSignal(ctx context.Context, sig *signal.Signal) (*db.Trade, error) {
	if err := sig.Validate(); err != nil {
		return nil, common.Wrap(common.CodeValidation, err, "invalid signal from %s", sig.Trader)
	}

	trade := &db.Trade{
		SourceMessageID: sig.SourceMessageID,
		Trader:          sig.Trader,
		Exchange:        string(e.Venue()),
		Coin:            sig.Coin,
		Side:            sig.PositionType,
		Content:         sig.Content,
		Status:          db.TradePending,
		CreatedAt:       sig.Timestamp,
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}
	if err := e.DB.CreateTrade(ctx, trade); err != nil {
		return nil, common.Wrap(common.CodeDatabase, err, "persist signal %s", sig.SourceMessageID)
	}

	if err := e.execute(ctx, trade, sig); err != nil {
		if ferr := e.DB.MarkTradeFailed(ctx, trade.ID, err.Error()); ferr != nil {
			log.Printf("❌ trade %d: record failure: %v", trade.ID, ferr)
		}
		return trade, err
	}
	return trade, nil
}

func (e *Engine) execute(ctx context.Context, trade *db.Trade, sig *signal.Signal) error {
	venue := string(e.Venue())

	// 1. Cooldown gate.
	if remaining := e.cooldown.remaining(venue, sig.Coin, e.Params.Cooldown); remaining > 0 {
		return common.E(common.CodeCooldownActive, "%s %s: cooldown active for %s", venue, sig.Coin, remaining.Round(time.Second)).
			WithMeta("retry_after_sec", int(remaining.Seconds()))
	}

	// 2. Symbol resolution.
	pair, filters, err := e.Resolver.Resolve(ctx, sig.Coin)
	if err != nil {
		return err
	}

	// 3. Current market price.
	current, err := e.currentPrice(ctx, pair)
	if err != nil {
		return err
	}

	// 4. Price-range decision.
	orderType, effective, err := decidePrice(sig, current)
	if err != nil {
		return err
	}

	// 5. Sizing.
	qty := e.Params.TradeAmount / effective
	if sig.QtyMultiplier > 1 {
		qty *= float64(sig.QtyMultiplier)
	}
	minQty, _ := filters.MinQty.Float64()
	if qty < minQty {
		return common.E(common.CodeValidation, "%s: sized qty %v below minimum %v", pair, qty, minQty)
	}
	qty = filters.RoundQty(qty)

	if e.Params.DryRun {
		log.Printf("📊 dry run: would enter %s %s %s qty=%v price=%v", pair, sig.PositionType, orderType, qty, effective)
		return e.DB.MarkTradeOpen(ctx, trade.ID, "dry-run", effective, qty, `{"dryRun":true}`)
	}

	// 6. Leverage, where the venue wants it per pair.
	if e.Ex.RequiresLeverageInit() && e.Params.Leverage > 0 {
		if err := e.Ex.SetLeverage(ctx, pair, e.Params.Leverage); err != nil {
			return err
		}
	}

	// 7. Entry.
	pos := common.PositionSide(sig.PositionType)
	res, err := e.Creator.PlaceEntry(ctx, order.EntryParams{
		Pair:          pair,
		Position:      pos,
		Type:          orderType,
		Qty:           qty,
		Price:         effective,
		ClientOrderID: sig.ClientOrderID,
	})
	if err != nil {
		return err
	}

	// 8. Brackets. Failures surface in logs only; the auditor remediates.
	var slID string
	if id, serr := e.SL.EnsureStopLoss(ctx, pair, pos, qty, effective, sig.StopLoss); serr != nil {
		log.Printf("⚠️ trade %d: stop loss not placed: %v", trade.ID, serr)
	} else {
		slID = id
	}
	if _, terr := e.TP.EnsureTakeProfits(ctx, pair, pos, qty, effective, sig.TakeProfits); terr != nil {
		log.Printf("⚠️ trade %d: take profits not placed: %v", trade.ID, terr)
	}

	// 9. Persist OPEN.
	response := string(res.Raw)
	if response == "" {
		if b, merr := json.Marshal(res); merr == nil {
			response = string(b)
		}
	}
	entryPrice := res.AvgPrice
	if entryPrice <= 0 {
		entryPrice = effective
	}
	if err := e.DB.MarkTradeOpen(ctx, trade.ID, res.ExchangeOrderID, entryPrice, qty, response); err != nil {
		return common.Wrap(common.CodeDatabase, err, "persist open trade %d", trade.ID)
	}
	if slID != "" {
		if err := e.DB.SetStopLossOrder(ctx, trade.ID, &slID); err != nil {
			log.Printf("⚠️ trade %d: record stop loss id: %v", trade.ID, err)
		}
	}

	// 10. Cooldown stamp, success only.
	e.cooldown.stamp(venue, sig.Coin)

	if e.Bus != nil {
		e.Bus.Publish(events.EventTradeOpened, events.TradeEvent{
			TradeID: trade.ID, Trader: trade.Trader, Exchange: venue, Coin: trade.Coin,
			Side: trade.Side, Size: qty, Price: entryPrice, Timestamp: time.Now().UTC(),
		})
	}
	log.Printf("✅ trade %d open: %s %s %s qty=%v entry=%v", trade.ID, venue, pair, sig.PositionType, qty, entryPrice)
	return nil
}

// currentPrice prefers the websocket cache, falling back to REST.
func (e *Engine) currentPrice(ctx context.Context, pair string) (float64, error) {
	if e.Prices != nil {
		if p, ok := e.Prices.Get(cache.Key(string(e.Venue()), pair)); ok && p > 0 {
			return p, nil
		}
	}
	price, err := e.Ex.GetMarkPrice(ctx, pair)
	if err != nil {
		return 0, err
	}
	return price, nil
}

// decidePrice applies the range rules and returns the order type plus the
// effective price the entry uses.
func decidePrice(sig *signal.Signal, current float64) (common.OrderType, float64, error) {
	lo, hi := sig.EntryPrices[0], sig.EntryPrices[0]
	for _, p := range sig.EntryPrices[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	long := sig.PositionType == signal.Long

	if sig.OrderType == signal.OrderMarket {
		if len(sig.EntryPrices) > 1 {
			if long && current > hi {
				return "", 0, common.E(common.CodeOutOfRange, "%s: current %v above range high %v", sig.Coin, current, hi)
			}
			if !long && current < lo {
				return "", 0, common.E(common.CodeOutOfRange, "%s: current %v below range low %v", sig.Coin, current, lo)
			}
		}
		return common.OrderTypeMarket, current, nil
	}

	// LIMIT: a range collapses to the side's best entry.
	price := sig.EntryPrices[0]
	if len(sig.EntryPrices) > 1 {
		if long {
			price = hi
			log.Printf("📊 %s: limit range [%v, %v], LONG buys at %v", sig.Coin, lo, hi, hi)
		} else {
			price = lo
			log.Printf("📊 %s: limit range [%v, %v], SHORT sells at %v", sig.Coin, lo, hi, lo)
		}
	}
	return common.OrderTypeLimit, price, nil
}
