package order

import (
	"context"
	"math"
	"testing"

	"signal-core/internal/mockex"
	"signal-core/pkg/exchanges/common"
)

func TestPlaceEntryGeneratesClientID(t *testing.T) {
	ex := &mockex.Mock{}
	c := NewCreator(ex, mockex.BTCFilters(), 0.05)

	res, err := c.PlaceEntry(context.Background(), EntryParams{
		Pair: "BTCUSDT", Position: common.PositionLong,
		Type: common.OrderTypeLimit, Qty: 0.002, Price: 86050,
	})
	if err != nil {
		t.Fatalf("PlaceEntry: %v", err)
	}
	if res.ClientOrderID == "" {
		t.Error("expected a generated client order id")
	}
	got := ex.Created[0]
	if got.Side != common.SideBuy || got.TimeInForce != common.TIFGTC {
		t.Errorf("entry request = %+v, want BUY GTC", got)
	}
}

func TestDefaultStopAndTake(t *testing.T) {
	c := NewCreator(&mockex.Mock{}, mockex.BTCFilters(), 0.05)
	if got := c.DefaultStop(100, common.PositionLong); got != 95 {
		t.Errorf("DefaultStop LONG = %v, want 95", got)
	}
	if got := c.DefaultStop(100, common.PositionShort); got != 105 {
		t.Errorf("DefaultStop SHORT = %v, want 105", got)
	}
	if got := c.DefaultTake(100, common.PositionLong); got != 105 {
		t.Errorf("DefaultTake LONG = %v, want 105", got)
	}
}

func TestPlaceStopLossIsReduceOnlyCloseSide(t *testing.T) {
	ex := &mockex.Mock{}
	c := NewCreator(ex, mockex.BTCFilters(), 0.05)

	if _, err := c.PlaceStopLoss(context.Background(), "BTCUSDT", common.PositionLong, 0.002, 83058); err != nil {
		t.Fatalf("PlaceStopLoss: %v", err)
	}
	got := ex.Created[0]
	if got.Type != common.OrderTypeStopMarket || !got.ReduceOnly || got.Side != common.SideSell {
		t.Errorf("stop loss request = %+v, want reduce-only SELL STOP_MARKET", got)
	}
	if got.StopPrice != 83058 {
		t.Errorf("stop price = %v, want 83058", got.StopPrice)
	}
}

func TestPlaceTakeProfitsSingleUsesFullSize(t *testing.T) {
	ex := &mockex.Mock{}
	c := NewCreator(ex, mockex.BTCFilters(), 0.05)

	out, err := c.PlaceTakeProfits(context.Background(), "BTCUSDT", common.PositionLong, 0.006, []float64{88000})
	if err != nil {
		t.Fatalf("PlaceTakeProfits: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d orders, want 1", len(out))
	}
	if ex.Created[0].Qty != 0.006 {
		t.Errorf("single TP qty = %v, want full size 0.006", ex.Created[0].Qty)
	}
}

func TestPlaceTakeProfitsSplitsEqually(t *testing.T) {
	ex := &mockex.Mock{}
	c := NewCreator(ex, mockex.BTCFilters(), 0.05)

	_, err := c.PlaceTakeProfits(context.Background(), "BTCUSDT", common.PositionLong, 0.006, []float64{88000, 90000, 92000})
	if err != nil {
		t.Fatalf("PlaceTakeProfits: %v", err)
	}
	if len(ex.Created) != 3 {
		t.Fatalf("got %d orders, want 3", len(ex.Created))
	}
	for i, r := range ex.Created {
		if math.Abs(r.Qty-0.002) > 1e-9 {
			t.Errorf("leg %d qty = %v, want 0.002", i+1, r.Qty)
		}
		if r.Type != common.OrderTypeTakeProfitMarket || !r.ReduceOnly {
			t.Errorf("leg %d = %+v, want reduce-only TAKE_PROFIT_MARKET", i+1, r)
		}
	}
}
