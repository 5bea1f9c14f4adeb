package engine

import (
	"context"
	"database/sql"
	"log"

	"signal-core/pkg/db"
)

// ResolvePrimary collapses duplicate open trades for the same
// (coin, side, trader) onto one primary: the oldest trade holding an
// exchange order id. Secondaries are marked MERGED pointing at it. The
// returned trade is the one follow-ups should act on.
//
// A secondary whose primary already closed is handed back unchanged and
// treated as standalone; the caller sees a warning in the log.
func (e *Engine) ResolvePrimary(ctx context.Context, t *db.Trade) (*db.Trade, error) {
	if t.MergedIntoTradeID != nil {
		primary, err := e.DB.GetTrade(ctx, *t.MergedIntoTradeID)
		if err != nil {
			return nil, err
		}
		if primary.Status == db.TradeClosed || primary.Status == db.TradeCancelled {
			log.Printf("⚠️ trade %d: primary %d already %s, handling standalone", t.ID, primary.ID, primary.Status)
			return t, nil
		}
		log.Printf("🔄 trade %d redirected to primary %d", t.ID, primary.ID)
		return primary, nil
	}

	open, err := e.DB.ListTrades(ctx, db.TradeFilter{
		Trader:   t.Trader,
		Coin:     t.Coin,
		Side:     t.Side,
		Statuses: []string{db.TradeOpen, db.TradePartiallyFilled},
	})
	if err != nil {
		return nil, err
	}
	if len(open) <= 1 {
		return t, nil
	}

	// ListTrades orders by created_at; the first with an order id wins.
	primary := &open[0]
	for i := range open {
		if open[i].ExchangeOrderID != nil {
			primary = &open[i]
			break
		}
	}

	err = e.DB.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range open {
			if open[i].ID == primary.ID {
				continue
			}
			if err := db.MarkMergedTx(ctx, tx, open[i].ID, primary.ID); err != nil {
				return err
			}
			log.Printf("🔄 trade %d merged into %d (%s %s %s)", open[i].ID, primary.ID, t.Trader, t.Coin, t.Side)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.DB.GetTrade(ctx, primary.ID)
}
