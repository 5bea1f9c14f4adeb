package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const alertColumns = `id, trade_ref, discord_id, trader, content, parsed_action,
	status, alert_at, created_at, processed_at`

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	err := row.Scan(
		&a.ID, &a.TradeRef, &a.DiscordID, &a.Trader, &a.Content, &a.ParsedAction,
		&a.Status, &a.AlertAt, &a.CreatedAt, &a.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts a new PENDING alert and fills in the generated id.
func (d *Database) CreateAlert(ctx context.Context, a *Alert) error {
	if a.Status == "" {
		a.Status = AlertPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.AlertAt.IsZero() {
		a.AlertAt = a.CreatedAt
	}
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO alerts (trade_ref, discord_id, trader, content, parsed_action, status, alert_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TradeRef, a.DiscordID, a.Trader, a.Content, a.ParsedAction, a.Status, a.AlertAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetAlert fetches by id.
func (d *Database) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	a, err := scanAlert(d.DB.QueryRowContext(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %d: %w", id, err)
	}
	return a, nil
}

// PendingAlertsForTrade returns PENDING alerts targeting a trade, in arrival order.
func (d *Database) PendingAlertsForTrade(ctx context.Context, tradeRef string) ([]Alert, error) {
	rows, err := d.DB.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE trade_ref = ? AND status = ? ORDER BY alert_at ASC, id ASC",
		tradeRef, AlertPending)
	if err != nil {
		return nil, fmt.Errorf("pending alerts for %s: %w", tradeRef, err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetAlertStatus transitions an alert, stamping processed_at on terminal states.
func (d *Database) SetAlertStatus(ctx context.Context, id int64, status string) error {
	return setAlertStatus(ctx, d.DB, id, status)
}

// SetAlertStatusTx is the in-transaction variant.
func SetAlertStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	return setAlertStatus(ctx, tx, id, status)
}

func setAlertStatus(ctx context.Context, q Querier, id int64, status string) error {
	var err error
	switch status {
	case AlertProcessed, AlertFailed, AlertSkipped:
		_, err = q.ExecContext(ctx,
			"UPDATE alerts SET status = ?, processed_at = ? WHERE id = ?",
			status, time.Now().UTC(), id)
	default:
		_, err = q.ExecContext(ctx, "UPDATE alerts SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("set alert %d status: %w", id, err)
	}
	return nil
}
