package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"momentum_go/internal/domain"
)

// Store is the SQLite-backed durable sink and key-value registry.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer; WAL lets readers proceed
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			reason TEXT NOT NULL,
			trigger_price REAL NOT NULL,
			entry_price REAL NOT NULL,
			actual_entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			qty REAL NOT NULL,
			entry_fee REAL NOT NULL,
			exit_fee REAL NOT NULL,
			gross_pnl REAL NOT NULL,
			net_pnl REAL NOT NULL,
			opened_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_instance ON trades(instance_id, closed_at);`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			reason TEXT NOT NULL,
			price_chg_pct REAL NOT NULL,
			oi_chg_pct REAL NOT NULL,
			hold INTEGER NOT NULL,
			detail TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_instance ON signals(instance_id, ts);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveTrade inserts a trade record. Re-inserting the same id is a no-op.
func (s *Store) SaveTrade(ctx context.Context, r domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trades (id, instance_id, mode, symbol, side, reason,
			trigger_price, entry_price, actual_entry_price, exit_price, qty,
			entry_fee, exit_fee, gross_pnl, net_pnl, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InstanceID, string(r.Mode), r.Symbol, string(r.Side), string(r.Reason),
		r.TriggerPrice, r.EntryPrice, r.ActualEntryPrice, r.ExitPrice, r.Qty,
		r.EntryFee, r.ExitFee, r.GrossPnL, r.NetPnL, r.OpenedAtMs, r.ClosedAtMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// SaveSignal appends a diagnostic row.
func (s *Store) SaveSignal(ctx context.Context, r domain.SignalRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (instance_id, symbol, side, reason, price_chg_pct, oi_chg_pct, hold, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.InstanceID, r.Symbol, string(r.Side), string(r.Reason),
		r.PriceChgPct, r.OIChgPct, r.Hold, r.Detail, r.AtMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// Trades returns the most recent trades of an instance, newest first.
func (s *Store) Trades(ctx context.Context, instanceID string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, mode, symbol, side, reason,
			trigger_price, entry_price, actual_entry_price, exit_price, qty,
			entry_fee, exit_fee, gross_pnl, net_pnl, opened_at, closed_at
		FROM trades WHERE instance_id = ? ORDER BY closed_at DESC, rowid DESC LIMIT ?`,
		instanceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var mode, side, reason string
		if err := rows.Scan(&r.ID, &r.InstanceID, &mode, &r.Symbol, &side, &reason,
			&r.TriggerPrice, &r.EntryPrice, &r.ActualEntryPrice, &r.ExitPrice, &r.Qty,
			&r.EntryFee, &r.ExitFee, &r.GrossPnL, &r.NetPnL, &r.OpenedAtMs, &r.ClosedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		r.Mode, r.Side, r.Reason = domain.Mode(mode), domain.Side(side), domain.Reason(reason)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Signals returns the most recent diagnostic rows of an instance, newest first.
func (s *Store) Signals(ctx context.Context, instanceID string, limit int) ([]domain.SignalRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, symbol, side, reason, price_chg_pct, oi_chg_pct, hold, detail, ts
		FROM signals WHERE instance_id = ? ORDER BY id DESC LIMIT ?`,
		instanceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRow
	for rows.Next() {
		var r domain.SignalRow
		var side, reason string
		if err := rows.Scan(&r.InstanceID, &r.Symbol, &side, &reason,
			&r.PriceChgPct, &r.OIChgPct, &r.Hold, &r.Detail, &r.AtMs); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		r.Side, r.Reason = domain.Side(side), domain.Reason(reason)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *Store) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table. A missing key
// returns "" and no error.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// DeleteMetadata removes a key.
func (s *Store) DeleteMetadata(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = ?", key)
	return err
}

// ScanMetadata returns every value whose key starts with prefix, ordered by key.
func (s *Store) ScanMetadata(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM metadata WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
