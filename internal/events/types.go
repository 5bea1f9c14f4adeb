package events

import "time"

// Event enumerates high-level topics inside the signal core.
type Event string

const (
	EventTradeOpened      Event = "trade.opened"
	EventTradeClosed      Event = "trade.closed"
	EventTradeMerged      Event = "trade.merged"
	EventBracketReplaced  Event = "bracket.replaced"
	EventAuditReport      Event = "audit.report"
	EventReconcileMatched Event = "reconcile.matched"
)

// TradeEvent is the payload for trade lifecycle topics.
type TradeEvent struct {
	TradeID   int64     `json:"trade_id"`
	Trader    string    `json:"trader"`
	Exchange  string    `json:"exchange"`
	Coin      string    `json:"coin"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BracketEvent reports a protective order being placed or replaced.
type BracketEvent struct {
	TradeID    int64     `json:"trade_id"`
	Pair       string    `json:"pair"`
	Kind       string    `json:"kind"` // stop_loss or take_profit
	OldOrderID string    `json:"old_order_id,omitempty"`
	NewOrderID string    `json:"new_order_id"`
	StopPrice  float64   `json:"stop_price"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEvent summarizes one auditor sweep over live positions.
type AuditEvent struct {
	Exchange  string    `json:"exchange"`
	Compliant int       `json:"compliant"`
	MissingSL int       `json:"missing_sl"`
	MissingTP int       `json:"missing_tp"`
	HighRisk  int       `json:"high_risk"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconcileEvent reports a closed-futures record matched to an open trade.
type ReconcileEvent struct {
	TradeID    int64     `json:"trade_id"`
	FuturesID  int64     `json:"futures_id"`
	Trader     string    `json:"trader"`
	Coin       string    `json:"coin"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}
