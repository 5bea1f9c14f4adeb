package db

import (
	"errors"
	"fmt"
	"time"
)

// Trade status values.
const (
	TradePending         = "PENDING"
	TradeOpen            = "OPEN"
	TradePartiallyFilled = "PARTIALLY_FILLED"
	TradeClosed          = "CLOSED"
	TradeCancelled       = "CANCELLED"
	TradeFailed          = "FAILED"
	TradeMerged          = "MERGED"
)

// Alert status values.
const (
	AlertPending   = "PENDING"
	AlertProcessed = "PROCESSED"
	AlertFailed    = "FAILED"
	AlertSkipped   = "SKIPPED"
)

// ActiveFutures status values.
const (
	FuturesActive = "ACTIVE"
	FuturesClosed = "CLOSED"
)

var (
	ErrTradeNotFound  = errors.New("trade not found")
	ErrAlertNotFound  = errors.New("alert not found")
	ErrBadTransition  = errors.New("invalid trade status transition")
	ErrDuplicateTrade = errors.New("trade with this source message id already exists")
)

// Trade is the authoritative local record of one position intent.
type Trade struct {
	ID                int64
	SourceMessageID   string
	Trader            string
	Exchange          string
	Coin              string
	Side              string // LONG / SHORT
	Content           string
	PositionSize      float64
	EntryPrice        float64
	ExitPrice         *float64
	Status            string
	ExchangeOrderID   *string
	StopLossOrderID   *string
	ExchangeResponse  string
	MergedIntoTradeID *int64
	LastPnLSync       *time.Time
	CreatedAt         time.Time
	ClosedAt          *time.Time
}

// Alert is an inbound follow-up update referencing a trade by source message id.
type Alert struct {
	ID           int64
	TradeRef     string // source_message_id of the targeted trade
	DiscordID    string
	Trader       string
	Content      string
	ParsedAction string // serialized action payload, may be empty
	Status       string
	AlertAt      time.Time
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// ActiveFutures mirrors one upstream "currently active trade" entry.
type ActiveFutures struct {
	ID        int64
	Trader    string
	Content   string
	Status    string
	CreatedAt time.Time
	StoppedAt *time.Time
}

// validTransitions is the trade state machine. A same-status update is a
// no-op, not a transition.
var validTransitions = map[string]map[string]bool{
	TradePending:         {TradeOpen: true, TradeFailed: true},
	TradeOpen:            {TradePartiallyFilled: true, TradeClosed: true, TradeCancelled: true, TradeMerged: true},
	TradePartiallyFilled: {TradeClosed: true, TradeMerged: true},
}

// CanTransition reports whether a trade may move from one status to another.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

func checkTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	return nil
}
