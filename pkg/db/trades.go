package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repository helpers can
// run standalone or inside WithTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const tradeColumns = `id, source_message_id, trader, exchange, coin, side, content,
	position_size, entry_price, exit_price, status, exchange_order_id,
	stop_loss_order_id, exchange_response, merged_into_trade_id, last_pnl_sync,
	created_at, closed_at`

func scanTrade(row interface{ Scan(...any) error }) (*Trade, error) {
	var t Trade
	err := row.Scan(
		&t.ID, &t.SourceMessageID, &t.Trader, &t.Exchange, &t.Coin, &t.Side, &t.Content,
		&t.PositionSize, &t.EntryPrice, &t.ExitPrice, &t.Status, &t.ExchangeOrderID,
		&t.StopLossOrderID, &t.ExchangeResponse, &t.MergedIntoTradeID, &t.LastPnLSync,
		&t.CreatedAt, &t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTrade inserts a new trade in PENDING (unless a status is preset) and
// fills in the generated id.
func (d *Database) CreateTrade(ctx context.Context, t *Trade) error {
	if t.Status == "" {
		t.Status = TradePending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (source_message_id, trader, exchange, coin, side, content,
			position_size, entry_price, status, exchange_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SourceMessageID, t.Trader, t.Exchange, t.Coin, t.Side, t.Content,
		t.PositionSize, t.EntryPrice, t.Status, t.ExchangeResponse, t.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTrade
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTrade fetches by surrogate id.
func (d *Database) GetTrade(ctx context.Context, id int64) (*Trade, error) {
	return getTrade(ctx, d.DB, id)
}

func getTrade(ctx context.Context, q Querier, id int64) (*Trade, error) {
	t, err := scanTrade(q.QueryRowContext(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %d: %w", id, err)
	}
	return t, nil
}

// GetTradeBySource fetches by the external source message id.
func (d *Database) GetTradeBySource(ctx context.Context, sourceMessageID string) (*Trade, error) {
	t, err := scanTrade(d.DB.QueryRowContext(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE source_message_id = ?", sourceMessageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade by source %s: %w", sourceMessageID, err)
	}
	return t, nil
}

// TradeFilter narrows ListTrades. Zero fields are ignored.
type TradeFilter struct {
	Trader   string
	Coin     string
	Side     string
	Statuses []string
}

// ListTrades returns trades matching the filter, oldest first.
func (d *Database) ListTrades(ctx context.Context, f TradeFilter) ([]Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	var args []any
	if f.Trader != "" {
		query += " AND trader = ?"
		args = append(args, f.Trader)
	}
	if f.Coin != "" {
		query += " AND coin = ?"
		args = append(args, f.Coin)
	}
	if f.Side != "" {
		query += " AND side = ?"
		args = append(args, f.Side)
	}
	if len(f.Statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(",?", len(f.Statuses)-1) + ")"
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// OpenTrades returns trades that still map to a live position.
func (d *Database) OpenTrades(ctx context.Context) ([]Trade, error) {
	return d.ListTrades(ctx, TradeFilter{Statuses: []string{TradeOpen, TradePartiallyFilled}})
}

// OpenTradesByCoin returns open trades for one coin.
func (d *Database) OpenTradesByCoin(ctx context.Context, coin string) ([]Trade, error) {
	return d.ListTrades(ctx, TradeFilter{Coin: coin, Statuses: []string{TradeOpen, TradePartiallyFilled}})
}

// UpdateTradeStatus moves a trade along the state machine, rejecting
// transitions the graph does not allow.
func (d *Database) UpdateTradeStatus(ctx context.Context, id int64, status string) error {
	return updateTradeStatus(ctx, d.DB, id, status)
}

// UpdateTradeStatusTx is the in-transaction variant.
func UpdateTradeStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	return updateTradeStatus(ctx, tx, id, status)
}

func updateTradeStatus(ctx context.Context, q Querier, id int64, status string) error {
	current, err := getTrade(ctx, q, id)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return fmt.Errorf("trade %d: %w", id, err)
	}
	_, err = q.ExecContext(ctx, "UPDATE trades SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update trade %d status: %w", id, err)
	}
	return nil
}

// MarkTradeOpen records a successful entry submission.
func (d *Database) MarkTradeOpen(ctx context.Context, id int64, exchangeOrderID string, entryPrice, size float64, response string) error {
	current, err := d.GetTrade(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, TradeOpen); err != nil {
		return fmt.Errorf("trade %d: %w", id, err)
	}
	_, err = d.DB.ExecContext(ctx, `
		UPDATE trades SET status = ?, exchange_order_id = ?, entry_price = ?,
			position_size = ?, exchange_response = ?
		WHERE id = ?`,
		TradeOpen, exchangeOrderID, entryPrice, size, response, id)
	if err != nil {
		return fmt.Errorf("mark trade %d open: %w", id, err)
	}
	return nil
}

// MarkTradeFailed records a rejected entry with the error text.
func (d *Database) MarkTradeFailed(ctx context.Context, id int64, reason string) error {
	current, err := d.GetTrade(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, TradeFailed); err != nil {
		return fmt.Errorf("trade %d: %w", id, err)
	}
	_, err = d.DB.ExecContext(ctx,
		"UPDATE trades SET status = ?, exchange_response = ? WHERE id = ?",
		TradeFailed, reason, id)
	if err != nil {
		return fmt.Errorf("mark trade %d failed: %w", id, err)
	}
	return nil
}

// SetStopLossOrder records (or clears, with nil) the active SL order id.
func (d *Database) SetStopLossOrder(ctx context.Context, id int64, orderID *string) error {
	_, err := d.DB.ExecContext(ctx,
		"UPDATE trades SET stop_loss_order_id = ? WHERE id = ?", orderID, id)
	if err != nil {
		return fmt.Errorf("set stop loss order for trade %d: %w", id, err)
	}
	return nil
}

// CloseTrade transitions to CLOSED (or PARTIALLY_FILLED when partial) and
// stamps closed_at / exit_price for full closes.
func (d *Database) CloseTrade(ctx context.Context, id int64, status string, exitPrice *float64) error {
	return closeTrade(ctx, d.DB, id, status, exitPrice)
}

// CloseTradeTx is the in-transaction variant.
func CloseTradeTx(ctx context.Context, tx *sql.Tx, id int64, status string, exitPrice *float64) error {
	return closeTrade(ctx, tx, id, status, exitPrice)
}

func closeTrade(ctx context.Context, q Querier, id int64, status string, exitPrice *float64) error {
	current, err := getTrade(ctx, q, id)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return fmt.Errorf("trade %d: %w", id, err)
	}

	if status == TradeClosed {
		now := time.Now().UTC()
		_, err = q.ExecContext(ctx, `
			UPDATE trades SET status = ?, closed_at = ?,
				exit_price = COALESCE(?, exit_price)
			WHERE id = ?`,
			status, now, exitPrice, id)
	} else {
		_, err = q.ExecContext(ctx,
			"UPDATE trades SET status = ?, exit_price = COALESCE(?, exit_price) WHERE id = ?",
			status, exitPrice, id)
	}
	if err != nil {
		return fmt.Errorf("close trade %d: %w", id, err)
	}
	return nil
}

// MarkMergedTx marks secondary as MERGED into primary, inside a transaction so
// a batch of secondaries merges atomically.
func MarkMergedTx(ctx context.Context, tx *sql.Tx, secondaryID, primaryID int64) error {
	current, err := getTrade(ctx, tx, secondaryID)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, TradeMerged); err != nil {
		return fmt.Errorf("trade %d: %w", secondaryID, err)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE trades SET status = ?, merged_into_trade_id = ? WHERE id = ?",
		TradeMerged, primaryID, secondaryID)
	if err != nil {
		return fmt.Errorf("merge trade %d into %d: %w", secondaryID, primaryID, err)
	}
	return nil
}

// TouchPnLSync stamps the last PnL reconciliation time.
func (d *Database) TouchPnLSync(ctx context.Context, id int64) error {
	_, err := d.DB.ExecContext(ctx,
		"UPDATE trades SET last_pnl_sync = ? WHERE id = ?", time.Now().UTC(), id)
	return err
}
