package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const futuresColumns = "id, trader, content, status, created_at, stopped_at"

func scanFutures(row interface{ Scan(...any) error }) (*ActiveFutures, error) {
	var f ActiveFutures
	err := row.Scan(&f.ID, &f.Trader, &f.Content, &f.Status, &f.CreatedAt, &f.StoppedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateActiveFutures inserts a mirror entry (written by the upstream sync job).
func (d *Database) CreateActiveFutures(ctx context.Context, f *ActiveFutures) error {
	if f.Status == "" {
		f.Status = FuturesActive
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO active_futures (trader, content, status, created_at, stopped_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.Trader, f.Content, f.Status, f.CreatedAt, f.StoppedAt,
	)
	if err != nil {
		return fmt.Errorf("insert active futures: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

// MarkFuturesClosed flips an entry to CLOSED and stamps stopped_at.
func (d *Database) MarkFuturesClosed(ctx context.Context, id int64, stoppedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx,
		"UPDATE active_futures SET status = ?, stopped_at = ? WHERE id = ?",
		FuturesClosed, stoppedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark active futures %d closed: %w", id, err)
	}
	return nil
}

// ClosedFuturesSince returns CLOSED entries with stopped_at after the
// watermark for the given traders, oldest first. Empty traders means all.
func (d *Database) ClosedFuturesSince(ctx context.Context, watermark time.Time, traders []string) ([]ActiveFutures, error) {
	query := "SELECT " + futuresColumns + " FROM active_futures WHERE status = ? AND stopped_at > ?"
	args := []any{FuturesClosed, watermark.UTC()}
	if len(traders) > 0 {
		query += " AND trader IN (?" + strings.Repeat(",?", len(traders)-1) + ")"
		for _, tr := range traders {
			args = append(args, tr)
		}
	}
	query += " ORDER BY stopped_at ASC, id ASC"

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("closed futures since %s: %w", watermark, err)
	}
	defer rows.Close()

	var out []ActiveFutures
	for rows.Next() {
		f, err := scanFutures(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}
