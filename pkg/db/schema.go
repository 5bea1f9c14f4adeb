package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_message_id TEXT NOT NULL UNIQUE,
    trader TEXT NOT NULL,
    exchange TEXT NOT NULL,
    coin TEXT NOT NULL,
    side TEXT NOT NULL,
    content TEXT DEFAULT '',
    position_size REAL DEFAULT 0,
    entry_price REAL DEFAULT 0,
    exit_price REAL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    exchange_order_id TEXT,
    stop_loss_order_id TEXT,
    exchange_response TEXT DEFAULT '',
    merged_into_trade_id INTEGER,
    last_pnl_sync DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_coin_status ON trades(coin, status);
CREATE INDEX IF NOT EXISTS idx_trades_trader ON trades(trader);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_ref TEXT NOT NULL,
    discord_id TEXT DEFAULT '',
    trader TEXT DEFAULT '',
    content TEXT DEFAULT '',
    parsed_action TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'PENDING',
    alert_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_alerts_trade_ref ON alerts(trade_ref);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

CREATE TABLE IF NOT EXISTS active_futures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trader TEXT NOT NULL,
    content TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    stopped_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_active_futures_status ON active_futures(status, stopped_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "trades", "content", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "merged_into_trade_id", "INTEGER"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "last_pnl_sync", "DATETIME"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "alerts", "parsed_action", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	return nil
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
