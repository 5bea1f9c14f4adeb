package engine

import (
	"context"
	"testing"
	"time"

	"signal-core/internal/locks"
	"signal-core/internal/mockex"
	"signal-core/internal/order"
	"signal-core/internal/position"
	"signal-core/internal/risk"
	"signal-core/internal/signal"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, coin string) (string, common.Filters, error) {
	f, err := mockex.BTCFilters()(ctx, "BTCUSDT")
	return "BTCUSDT", f, err
}

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func newTestEngine(t *testing.T, ex *mockex.Mock, params Params) (*Engine, *db.Database) {
	t.Helper()
	database := newTestDB(t)
	v := common.NewValidator(ex, mockex.BTCFilters(), 3)
	v.MarkPriceDelay = time.Millisecond
	v.Retry.BaseDelay = time.Millisecond

	creator := order.NewCreator(v, mockex.BTCFilters(), 0.05)
	sl := risk.NewStopLossManager(v, creator)
	tp := risk.NewTakeProfitManager(v, creator)
	resolve := func(ctx context.Context, coin string) (string, common.Filters, error) {
		return stubResolver{}.Resolve(ctx, coin)
	}
	pos := position.NewManager(v, database, resolve, nil, 0.0002)
	eng := New(v, stubResolver{}, creator, sl, tp, pos, database, nil, locks.NewRegistry(), nil, params)
	return eng, database
}

func longLimitSignal(msgID string) *signal.Signal {
	return &signal.Signal{
		Coin:            "BTC",
		PositionType:    signal.Long,
		OrderType:       signal.OrderLimit,
		EntryPrices:     []float64{86050, 85050},
		StopLoss:        83058,
		TakeProfits:     []float64{88000},
		Trader:          "@Johnny",
		SourceMessageID: msgID,
		Content:         "BTC Entry: 86050-85050 SL: 83058",
		Timestamp:       time.Now().UTC(),
	}
}

func TestHandleSignalLongLimitWithRange(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 86100}
	eng, database := newTestEngine(t, ex, Params{TradeAmount: 100})

	trade, err := eng.HandleSignal(context.Background(), longLimitSignal("m1"))
	if err != nil {
		t.Fatalf("HandleSignal: %v", err)
	}

	entries := ex.CreatedOfType(common.OrderTypeLimit)
	if len(entries) != 1 || entries[0].Price != 86050 || entries[0].Side != common.SideBuy {
		t.Fatalf("entry = %+v, want BUY LIMIT at range high 86050", entries)
	}
	sls := ex.CreatedOfType(common.OrderTypeStopMarket)
	if len(sls) != 1 || sls[0].StopPrice != 83058 || !sls[0].ReduceOnly {
		t.Errorf("stop loss = %+v, want reduce-only at 83058", sls)
	}
	tps := ex.CreatedOfType(common.OrderTypeTakeProfitMarket)
	if len(tps) != 1 || tps[0].StopPrice != 88000 || !tps[0].ReduceOnly {
		t.Errorf("take profit = %+v, want reduce-only at 88000", tps)
	}

	got, err := database.GetTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.TradeOpen || got.ExchangeOrderID == nil || got.StopLossOrderID == nil {
		t.Errorf("trade = %+v, want OPEN with order ids", got)
	}
}

func TestHandleSignalCooldownBlocksSecondEntry(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 86100}
	eng, database := newTestEngine(t, ex, Params{TradeAmount: 100, Cooldown: time.Hour})

	if _, err := eng.HandleSignal(context.Background(), longLimitSignal("m1")); err != nil {
		t.Fatalf("first signal: %v", err)
	}
	trade, err := eng.HandleSignal(context.Background(), longLimitSignal("m2"))
	if !common.IsCode(err, common.CodeCooldownActive) {
		t.Fatalf("err = %v, want COOLDOWN_ACTIVE", err)
	}
	got, _ := database.GetTrade(context.Background(), trade.ID)
	if got.Status != db.TradeFailed {
		t.Errorf("second trade status = %s, want FAILED", got.Status)
	}
}

func TestHandleSignalMarketOutOfRange(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 87000}
	eng, _ := newTestEngine(t, ex, Params{TradeAmount: 100})

	sig := longLimitSignal("m1")
	sig.OrderType = signal.OrderMarket
	_, err := eng.HandleSignal(context.Background(), sig)
	if !common.IsCode(err, common.CodeOutOfRange) {
		t.Fatalf("err = %v, want OUT_OF_RANGE", err)
	}
	if len(ex.Created) != 0 {
		t.Errorf("no orders may be sent, got %v", ex.Created)
	}
}

func TestHandleSignalMarkPriceUnavailableFailsTradeKeepsCooldownClear(t *testing.T) {
	ex := &mockex.Mock{} // MarkPrice zero: every fetch fails
	eng, database := newTestEngine(t, ex, Params{TradeAmount: 100, Cooldown: time.Hour})

	sig := longLimitSignal("m1")
	sig.OrderType = signal.OrderMarket
	trade, err := eng.HandleSignal(context.Background(), sig)
	if !common.IsCode(err, common.CodeMarkPriceUnavailable) {
		t.Fatalf("err = %v, want MARK_PRICE_UNAVAILABLE", err)
	}
	got, _ := database.GetTrade(context.Background(), trade.ID)
	if got.Status != db.TradeFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
	if len(ex.Created) != 0 {
		t.Errorf("no orders may be sent, got %v", ex.Created)
	}

	// Cooldown untouched: a later valid signal goes through.
	ex.MarkPrice = 86000
	if _, err := eng.HandleSignal(context.Background(), longLimitSignal("m2")); err != nil {
		t.Errorf("entry after failed signal should pass, got %v", err)
	}
}

func TestHandleSignalQtyBelowMinimum(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 86100}
	eng, _ := newTestEngine(t, ex, Params{TradeAmount: 10}) // 10/86050 < 0.001 min qty

	_, err := eng.HandleSignal(context.Background(), longLimitSignal("m1"))
	if !common.IsCode(err, common.CodeValidation) {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
}

func TestDecidePriceBoundaries(t *testing.T) {
	base := &signal.Signal{Coin: "BTC", OrderType: signal.OrderMarket, EntryPrices: []float64{85050, 86050}}

	long := *base
	long.PositionType = signal.Long
	if _, price, err := decidePrice(&long, 85050); err != nil || price != 85050 {
		t.Errorf("LONG at range low: price=%v err=%v, want accept at 85050", price, err)
	}
	short := *base
	short.PositionType = signal.Short
	if _, price, err := decidePrice(&short, 85050); err != nil || price != 85050 {
		t.Errorf("SHORT at range low: price=%v err=%v, want accept", price, err)
	}
	if _, _, err := decidePrice(&short, 85049); !common.IsCode(err, common.CodeOutOfRange) {
		t.Errorf("SHORT below range: err=%v, want OUT_OF_RANGE", err)
	}

	limitShort := *base
	limitShort.PositionType = signal.Short
	limitShort.OrderType = signal.OrderLimit
	if typ, price, err := decidePrice(&limitShort, 90000); err != nil || price != 85050 || typ != common.OrderTypeLimit {
		t.Errorf("SHORT limit range: type=%v price=%v err=%v, want LIMIT at low 85050", typ, price, err)
	}
}

func TestResolvePrimaryMergesDuplicates(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 86100}
	eng, database := newTestEngine(t, ex, Params{TradeAmount: 100})
	ctx := context.Background()

	t1, err := eng.HandleSignal(ctx, longLimitSignal("m1"))
	if err != nil {
		t.Fatal(err)
	}
	t2, err := eng.HandleSignal(ctx, longLimitSignal("m2"))
	if err != nil {
		t.Fatal(err)
	}

	t2row, _ := database.GetTrade(ctx, t2.ID)
	primary, err := eng.ResolvePrimary(ctx, t2row)
	if err != nil {
		t.Fatalf("ResolvePrimary: %v", err)
	}
	if primary.ID != t1.ID {
		t.Errorf("primary = %d, want oldest trade %d", primary.ID, t1.ID)
	}
	merged, _ := database.GetTrade(ctx, t2.ID)
	if merged.Status != db.TradeMerged || merged.MergedIntoTradeID == nil || *merged.MergedIntoTradeID != t1.ID {
		t.Errorf("secondary = %+v, want MERGED into %d", merged, t1.ID)
	}
}

func TestResolvePrimaryStandaloneWhenPrimaryClosed(t *testing.T) {
	ex := &mockex.Mock{MarkPrice: 86100}
	eng, database := newTestEngine(t, ex, Params{TradeAmount: 100})
	ctx := context.Background()

	t1, _ := eng.HandleSignal(ctx, longLimitSignal("m1"))
	t2, _ := eng.HandleSignal(ctx, longLimitSignal("m2"))
	t2row, _ := database.GetTrade(ctx, t2.ID)
	if _, err := eng.ResolvePrimary(ctx, t2row); err != nil {
		t.Fatal(err)
	}
	if err := database.CloseTrade(ctx, t1.ID, db.TradeClosed, nil); err != nil {
		t.Fatal(err)
	}

	t2row, _ = database.GetTrade(ctx, t2.ID)
	got, err := eng.ResolvePrimary(ctx, t2row)
	if err != nil {
		t.Fatalf("ResolvePrimary: %v", err)
	}
	if got.ID != t2.ID {
		t.Errorf("closed primary must fall back to the secondary, got trade %d", got.ID)
	}
}
