package signal

import "testing"

func TestClassifyPrefersParsedAction(t *testing.T) {
	a := &Alert{
		Content: "random text",
		Parsed:  &ParsedAction{ActionType: "take_profit_2", TPPrice: 110},
	}
	if got := Classify(a); got != ActionTakeProfit {
		t.Errorf("Classify = %q, want %q", got, ActionTakeProfit)
	}
	if idx := TakeProfitIndex("take_profit_2"); idx != 2 {
		t.Errorf("TakeProfitIndex = %d, want 2", idx)
	}
}

func TestClassifyHeuristics(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"Move SL to entry — break even on BTC", ActionBreakEven},
		{"Stoploss hit on ETH, out", ActionStopLossHit},
		{"TP1 reached, secure some profit", ActionTakeProfit},
		{"Closed in profit, all targets done", ActionProfitClose},
		{"Cancel the limit order on SOL", ActionLimitCancelled},
		{"New SL 83000 for BTC", ActionStopLossUpdate},
		{"gm everyone", ActionUnknown},
	}
	for _, tc := range cases {
		if got := classifyText(tc.content); got != tc.want {
			t.Errorf("classifyText(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}

func TestSignalValidate(t *testing.T) {
	ok := Signal{
		Coin: "BTC", PositionType: Long, OrderType: OrderLimit,
		EntryPrices: []float64{86050, 85050}, SourceMessageID: "m1",
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid signal rejected: %v", err)
	}
	bad := ok
	bad.EntryPrices = nil
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing entry prices")
	}
	bad = ok
	bad.PositionType = "SIDEWAYS"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for bad position type")
	}
}
