// Package signal defines the normalized inbound shapes the core consumes:
// entry signals parsed from trader messages and follow-up alerts.
package signal

import "time"

// Order types accepted on a signal.
const (
	OrderMarket = "MARKET"
	OrderLimit  = "LIMIT"
)

// Position sides accepted on a signal.
const (
	Long  = "LONG"
	Short = "SHORT"
)

// Signal is a normalized entry intent.
type Signal struct {
	Coin            string    `json:"coin_symbol"`
	PositionType    string    `json:"position_type"` // LONG or SHORT
	OrderType       string    `json:"order_type"`    // MARKET or LIMIT
	EntryPrices     []float64 `json:"entry_prices"`  // 1..N, ordered as given
	StopLoss        float64   `json:"stop_loss,omitempty"`
	TakeProfits     []float64 `json:"take_profits,omitempty"`
	QtyMultiplier   int       `json:"quantity_multiplier,omitempty"`
	ClientOrderID   string    `json:"client_order_id,omitempty"`
	Trader          string    `json:"trader"`
	SourceMessageID string    `json:"source_message_id"`
	Content         string    `json:"content,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate rejects signals that cannot be acted on.
func (s *Signal) Validate() error {
	switch {
	case s.Coin == "":
		return errField("coin_symbol")
	case s.PositionType != Long && s.PositionType != Short:
		return errField("position_type")
	case s.OrderType != OrderMarket && s.OrderType != OrderLimit:
		return errField("order_type")
	case len(s.EntryPrices) == 0:
		return errField("entry_prices")
	case s.SourceMessageID == "":
		return errField("source_message_id")
	}
	for _, p := range s.EntryPrices {
		if p <= 0 {
			return errField("entry_prices")
		}
	}
	if s.StopLoss < 0 {
		return errField("stop_loss")
	}
	return nil
}

// Alert is a follow-up update referencing a prior trade by its source id.
type Alert struct {
	TradeRef  string        `json:"trade"` // source_message_id of the entry
	DiscordID string        `json:"discord_id"`
	Trader    string        `json:"trader"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Parsed    *ParsedAction `json:"parsed_action,omitempty"`
}

// ParsedAction carries the upstream parser's reading of an alert.
type ParsedAction struct {
	ActionType   string  `json:"action_type"`
	Coin         string  `json:"coin_symbol,omitempty"`
	TradeGroupID string  `json:"trade_group_id,omitempty"`
	TPPrice      float64 `json:"tp_price,omitempty"`
	StopPrice    float64 `json:"stop_price,omitempty"`
	ClosePercent float64 `json:"close_percentage,omitempty"`
}

type errField string

func (e errField) Error() string { return "signal: missing or invalid field " + string(e) }
