package followup

import (
	"context"
	"math"
	"testing"
	"time"

	"signal-core/internal/engine"
	"signal-core/internal/locks"
	"signal-core/internal/mockex"
	"signal-core/internal/order"
	"signal-core/internal/position"
	"signal-core/internal/risk"
	"signal-core/internal/router"
	"signal-core/internal/signal"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

var testFilters = mockex.StaticFilters(common.SymbolInfo{
	Pair: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Tradeable: true,
	StepSize: "0.001", TickSize: "0.01", MinQty: "0.001", MaxQty: "1000", MinNotional: "5",
})

type btcResolver struct{}

func (btcResolver) Resolve(ctx context.Context, coin string) (string, common.Filters, error) {
	f, err := testFilters(ctx, "BTCUSDT")
	return "BTCUSDT", f, err
}

func newHarness(t *testing.T, ex *mockex.Mock) (*Processor, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	v := common.NewValidator(ex, testFilters, 3)
	v.MarkPriceDelay = time.Millisecond
	v.Retry.BaseDelay = time.Millisecond
	creator := order.NewCreator(v, testFilters, 0.05)
	sl := risk.NewStopLossManager(v, creator)
	tp := risk.NewTakeProfitManager(v, creator)
	resolve := func(ctx context.Context, coin string) (string, common.Filters, error) {
		return btcResolver{}.Resolve(ctx, coin)
	}
	pos := position.NewManager(v, database, resolve, nil, 0.0002)
	reg := locks.NewRegistry()
	eng := engine.New(v, btcResolver{}, creator, sl, tp, pos, database, nil, reg, nil, engine.Params{TradeAmount: 100})

	r := router.New(map[string]*engine.Engine{"binance": eng}, nil, "binance")
	return NewProcessor(database, r, reg, 5*time.Minute), database
}

func seedOpen(t *testing.T, database *db.Database, msgID string, size float64, withSL bool) *db.Trade {
	t.Helper()
	ctx := context.Background()
	tr := &db.Trade{
		SourceMessageID: msgID,
		Trader:          "@Johnny",
		Exchange:        "binance",
		Coin:            "BTC",
		Side:            "LONG",
		Content:         "BTC Entry: 100 SL: 95",
		PositionSize:    size,
		EntryPrice:      100,
		Status:          db.TradePending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := database.CreateTrade(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := database.MarkTradeOpen(ctx, tr.ID, "ex-"+msgID, 100, size, `{"updateTime":1}`); err != nil {
		t.Fatal(err)
	}
	if withSL {
		slID := "sl-" + msgID
		if err := database.SetStopLossOrder(ctx, tr.ID, &slID); err != nil {
			t.Fatal(err)
		}
	}
	got, err := database.GetTrade(ctx, tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestBreakEvenReplacesStop(t *testing.T) {
	ex := &mockex.Mock{
		MarkPrice: 101,
		Positions: []common.Position{{Pair: "BTCUSDT", PositionAmt: 1, EntryPrice: 100}},
	}
	p, database := newHarness(t, ex)
	tr := seedOpen(t, database, "m1", 1, true)

	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m1",
		Trader:    "@Johnny",
		Content:   "BTC moving, SL to entry — break even",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(ex.Cancelled) != 1 || ex.Cancelled[0] != "sl-m1" {
		t.Errorf("cancelled = %v, want old stop sl-m1", ex.Cancelled)
	}
	stops := ex.CreatedOfType(common.OrderTypeStopMarket)
	if len(stops) != 1 {
		t.Fatalf("stop orders = %d, want 1", len(stops))
	}
	// entry 100, fee 0.02% per side, tick 0.01 -> 100.04
	if math.Abs(stops[0].StopPrice-100.04) > 1e-9 {
		t.Errorf("new stop = %v, want breakeven 100.04", stops[0].StopPrice)
	}
	got, _ := database.GetTrade(context.Background(), tr.ID)
	if got.StopLossOrderID == nil || *got.StopLossOrderID == "sl-m1" {
		t.Errorf("stop loss order id not replaced: %v", got.StopLossOrderID)
	}
}

func TestPartialTakeProfit(t *testing.T) {
	ex := &mockex.Mock{
		MarkPrice: 105,
		Positions: []common.Position{{Pair: "BTCUSDT", PositionAmt: 1, EntryPrice: 100}},
	}
	p, database := newHarness(t, ex)
	tr := seedOpen(t, database, "m1", 1, true)

	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m1",
		Trader:    "@Johnny",
		Content:   "TP1 hit on BTC",
		Timestamp: time.Now().UTC(),
		Parsed: &signal.ParsedAction{
			ActionType:   "take_profit_1",
			Coin:         "BTC",
			TPPrice:      110,
			ClosePercent: 50,
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	limits := ex.CreatedOfType(common.OrderTypeLimit)
	if len(limits) != 1 {
		t.Fatalf("limit orders = %d, want 1", len(limits))
	}
	got := limits[0]
	if got.Side != common.SideSell || !got.ReduceOnly || got.Qty != 0.5 || got.Price != 110 {
		t.Errorf("partial TP = %+v, want reduce-only SELL 0.5 @ 110", got)
	}
	if len(ex.Cancelled) != 0 {
		t.Errorf("other brackets must remain, cancelled %v", ex.Cancelled)
	}
	row, _ := database.GetTrade(context.Background(), tr.ID)
	if row.Status != db.TradePartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", row.Status)
	}
}

func TestStopLossHitRedirectsToPrimary(t *testing.T) {
	ex := &mockex.Mock{
		MarkPrice: 95,
		Positions: []common.Position{{Pair: "BTCUSDT", PositionAmt: 2, EntryPrice: 100}},
	}
	p, database := newHarness(t, ex)
	t1 := seedOpen(t, database, "m1", 1, false)
	t2 := seedOpen(t, database, "m2", 1, false)

	// Content without a ticker forces the source-id fallback onto T2.
	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m2",
		Trader:    "@Johnny",
		Content:   "stopped out",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	primary, _ := database.GetTrade(context.Background(), t1.ID)
	if primary.Status != db.TradeClosed {
		t.Errorf("primary status = %s, want CLOSED", primary.Status)
	}
	secondary, _ := database.GetTrade(context.Background(), t2.ID)
	if secondary.Status != db.TradeMerged || secondary.MergedIntoTradeID == nil || *secondary.MergedIntoTradeID != t1.ID {
		t.Errorf("secondary = %+v, want MERGED into %d", secondary, t1.ID)
	}
	closes := ex.CreatedOfType(common.OrderTypeMarket)
	if len(closes) != 1 || !closes[0].ReduceOnly {
		t.Errorf("closes = %+v, want one reduce-only market close", closes)
	}
}

func TestLimitOrderCancelled(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 100}
	p, database := newHarness(t, ex)
	tr := seedOpen(t, database, "m1", 1, false)

	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m1",
		Trader:    "@Johnny",
		Content:   "cancel the limit order",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(ex.Cancelled) != 1 || ex.Cancelled[0] != "ex-m1" {
		t.Errorf("cancelled = %v, want entry order ex-m1", ex.Cancelled)
	}
	got, _ := database.GetTrade(context.Background(), tr.ID)
	if got.Status != db.TradeCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestUnknownActionSkips(t *testing.T) {
	ex := &mockex.Mock{}
	p, database := newHarness(t, ex)
	seedOpen(t, database, "m1", 1, false)

	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m1",
		Trader:    "@Johnny",
		Content:   "gm",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	alerts, _ := database.PendingAlertsForTrade(context.Background(), "m1")
	if len(alerts) != 0 {
		t.Errorf("alert left pending: %+v", alerts)
	}
	if len(ex.Created) != 0 || len(ex.Cancelled) != 0 {
		t.Error("no exchange activity expected for unknown action")
	}
}

func TestCloseSkippedWhenPositionGone(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 95} // no live positions
	p, database := newHarness(t, ex)
	tr := seedOpen(t, database, "m1", 1, false)

	err := p.Process(context.Background(), &signal.Alert{
		TradeRef:  "m1",
		Trader:    "@Johnny",
		Content:   "stopped out",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := len(ex.CreatedOfType(common.OrderTypeMarket)); n != 0 {
		t.Errorf("market closes = %d, want 0 when no live position", n)
	}
	got, _ := database.GetTrade(context.Background(), tr.ID)
	if got.Status != db.TradeOpen {
		t.Errorf("status = %s, want OPEN untouched", got.Status)
	}
}
