package risk

import (
	"context"
	"errors"
	"testing"

	"signal-core/internal/mockex"
	"signal-core/internal/order"
	"signal-core/pkg/exchanges/common"
)

func newManagers(ex *mockex.Mock) (*StopLossManager, *TakeProfitManager) {
	creator := order.NewCreator(ex, mockex.BTCFilters(), 0.05)
	return NewStopLossManager(ex, creator), NewTakeProfitManager(ex, creator)
}

func TestEnsureStopLossCancelsExistingFirst(t *testing.T) {
	ex := &mockex.Mock{
		Open: []common.OrderInfo{
			{ExchangeOrderID: "old-sl", Pair: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeStopMarket},
			{ExchangeOrderID: "tp-1", Pair: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeTakeProfitMarket},
		},
	}
	sl, _ := newManagers(ex)

	id, err := sl.EnsureStopLoss(context.Background(), "BTCUSDT", common.PositionLong, 0.002, 86050, 83058)
	if err != nil {
		t.Fatalf("EnsureStopLoss: %v", err)
	}
	if id == "" {
		t.Fatal("expected a new order id")
	}
	if len(ex.Cancelled) != 1 || ex.Cancelled[0] != "old-sl" {
		t.Errorf("cancelled = %v, want only old-sl", ex.Cancelled)
	}
	created := ex.Created[0]
	if created.StopPrice != 83058 || created.Type != common.OrderTypeStopMarket {
		t.Errorf("created = %+v, want STOP_MARKET at 83058", created)
	}
}

func TestEnsureStopLossDefaultsFromEntry(t *testing.T) {
	ex := &mockex.Mock{}
	sl, _ := newManagers(ex)

	if _, err := sl.EnsureStopLoss(context.Background(), "BTCUSDT", common.PositionLong, 0.002, 100, 0); err != nil {
		t.Fatalf("EnsureStopLoss: %v", err)
	}
	if got := ex.Created[0].StopPrice; got != 95 {
		t.Errorf("default stop = %v, want 95 (5%% under entry)", got)
	}
}

func TestEnsureStopLossAbortsWhenCancelFails(t *testing.T) {
	ex := &mockex.Mock{
		Open: []common.OrderInfo{
			{ExchangeOrderID: "stuck", Pair: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeStopMarket},
		},
	}
	ex.CancelFn = func(ctx context.Context, pair, orderID string) error {
		return errors.New("venue unavailable")
	}
	sl, _ := newManagers(ex)

	if _, err := sl.EnsureStopLoss(context.Background(), "BTCUSDT", common.PositionLong, 0.002, 100, 95); err == nil {
		t.Fatal("expected error when cancel fails")
	}
	if len(ex.Created) != 0 {
		t.Errorf("no create may happen after failed cancel, got %v", ex.Created)
	}
}

func TestUpdateStopLossStrictOrdering(t *testing.T) {
	ex := &mockex.Mock{}
	sl, _ := newManagers(ex)

	id, err := sl.UpdateStopLoss(context.Background(), "BTCUSDT", common.PositionLong, 0.002, "sl-1", 84000)
	if err != nil {
		t.Fatalf("UpdateStopLoss: %v", err)
	}
	if len(ex.Cancelled) != 1 || ex.Cancelled[0] != "sl-1" {
		t.Errorf("cancelled = %v, want sl-1", ex.Cancelled)
	}
	if id == "" || ex.Created[0].StopPrice != 84000 {
		t.Errorf("replacement = %+v, want stop at 84000", ex.Created[0])
	}
}

func TestEnsureTakeProfitsDefaultsSingleLeg(t *testing.T) {
	ex := &mockex.Mock{}
	_, tp := newManagers(ex)

	ids, err := tp.EnsureTakeProfits(context.Background(), "BTCUSDT", common.PositionShort, 0.002, 100, nil)
	if err != nil {
		t.Fatalf("EnsureTakeProfits: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
	created := ex.Created[0]
	if created.StopPrice != 95 || created.Side != common.SideBuy {
		t.Errorf("short default TP = %+v, want BUY trigger at 95", created)
	}
}

func TestAuditorClassifiesPositions(t *testing.T) {
	ex := &mockex.Mock{
		Positions: []common.Position{
			{Pair: "BTCUSDT", PositionAmt: 0.002, EntryPrice: 86050, UnrealizedProfit: -30},
			{Pair: "ETHUSDT", PositionAmt: -1, EntryPrice: 3000, UnrealizedProfit: 5},
		},
		Open: []common.OrderInfo{
			{ExchangeOrderID: "sl", Pair: "ETHUSDT", Side: common.SideBuy, Type: common.OrderTypeStopMarket},
			{ExchangeOrderID: "tp", Pair: "ETHUSDT", Side: common.SideBuy, Type: common.OrderTypeTakeProfitMarket},
		},
	}
	a := NewPositionAuditor(ex, nil, nil, nil, 0.10)

	report, err := a.Audit(context.Background())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(report.Findings))
	}
	btc := report.Findings[0]
	if !btc.MissingSL || !btc.MissingTP || !btc.HighRisk || btc.Compliant {
		t.Errorf("BTC finding = %+v, want missing brackets and high risk", btc)
	}
	eth := report.Findings[1]
	if !eth.Compliant {
		t.Errorf("ETH finding = %+v, want compliant", eth)
	}
}

func TestRemediateRestoresMissingBrackets(t *testing.T) {
	ex := &mockex.Mock{
		Positions: []common.Position{
			{Pair: "BTCUSDT", PositionAmt: 0.002, EntryPrice: 86050},
		},
	}
	sl, tp := newManagers(ex)
	a := NewPositionAuditor(ex, sl, tp, nil, 0.10)

	report, err := a.Audit(context.Background())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	a.Remediate(context.Background(), report)

	if n := len(ex.CreatedOfType(common.OrderTypeStopMarket)); n != 1 {
		t.Errorf("stop orders created = %d, want 1", n)
	}
	if n := len(ex.CreatedOfType(common.OrderTypeTakeProfitMarket)); n != 1 {
		t.Errorf("take profit orders created = %d, want 1", n)
	}
}
