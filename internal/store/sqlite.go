package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"alpaca-gate/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily accounting, one row per trading day
	CREATE TABLE IF NOT EXISTS daily_accounting (
		day TEXT PRIMARY KEY,
		realized_pnl REAL NOT NULL DEFAULT 0,
		orders_today INTEGER NOT NULL DEFAULT 0,
		last_order_at DATETIME,
		start_of_day_equity REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Breaker state, single row
	CREATE TABLE IF NOT EXISTS breaker_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state TEXT NOT NULL,
		tripped_at DATETIME,
		tripped_day TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Account snapshot, single row
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cash REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Open positions with embedded trailing-stop state
	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		peak_price REAL NOT NULL,
		stop_price REAL NOT NULL,
		last_price REAL NOT NULL DEFAULT 0,
		pending_close INTEGER NOT NULL DEFAULT 0,
		opened_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Gate decision history
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity REAL NOT NULL,
		accepted INTEGER NOT NULL,
		reason TEXT,
		order_id TEXT,
		fill_price REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol);
	CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveState persists the full gate state in one transaction. The daily
// row is upserted by day; breaker and account are single-row tables;
// positions are replaced wholesale.
func (s *SQLiteStore) SaveState(ctx context.Context, state *GateState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_accounting (day, realized_pnl, orders_today, last_order_at, start_of_day_equity, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(day) DO UPDATE SET
			realized_pnl = excluded.realized_pnl,
			orders_today = excluded.orders_today,
			last_order_at = excluded.last_order_at,
			start_of_day_equity = excluded.start_of_day_equity,
			updated_at = CURRENT_TIMESTAMP`,
		state.Daily.Day, state.Daily.RealizedPnL, state.Daily.OrdersToday,
		nullableTime(state.Daily.LastOrderAt), state.Daily.StartOfDayEquity)
	if err != nil {
		return fmt.Errorf("failed to save daily accounting: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO breaker_state (id, state, tripped_at, tripped_day, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			tripped_at = excluded.tripped_at,
			tripped_day = excluded.tripped_day,
			updated_at = CURRENT_TIMESTAMP`,
		string(state.Breaker), nullableTime(state.TrippedAt), state.TrippedDay)
	if err != nil {
		return fmt.Errorf("failed to save breaker state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account (id, cash, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, updated_at = CURRENT_TIMESTAMP`,
		state.Cash)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	for _, pos := range state.Positions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions (symbol, side, quantity, entry_price, peak_price, stop_price, last_price, pending_close, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice,
			pos.PeakPrice, pos.StopPrice, pos.LastPrice, boolToInt(pos.PendingClose), pos.OpenedAt)
		if err != nil {
			return fmt.Errorf("failed to save position %s: %w", pos.Symbol, err)
		}
	}

	return tx.Commit()
}

// LoadState loads the most recent persisted gate state. Returns nil
// with no error when nothing has been persisted yet.
func (s *SQLiteStore) LoadState(ctx context.Context) (*GateState, error) {
	state := &GateState{Breaker: models.BreakerArmed}

	var lastOrderAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT day, realized_pnl, orders_today, last_order_at, start_of_day_equity
		FROM daily_accounting ORDER BY day DESC LIMIT 1`).Scan(
		&state.Daily.Day, &state.Daily.RealizedPnL, &state.Daily.OrdersToday,
		&lastOrderAt, &state.Daily.StartOfDayEquity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily accounting: %w", err)
	}
	if lastOrderAt.Valid {
		state.Daily.LastOrderAt = lastOrderAt.Time
	}

	var breakerState string
	var trippedAt sql.NullTime
	var trippedDay sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT state, tripped_at, tripped_day FROM breaker_state WHERE id = 1`).Scan(
		&breakerState, &trippedAt, &trippedDay)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load breaker state: %w", err)
	}
	if err == nil {
		state.Breaker = models.BreakerState(breakerState)
		if trippedAt.Valid {
			state.TrippedAt = trippedAt.Time
		}
		if trippedDay.Valid {
			state.TrippedDay = trippedDay.String
		}
	}

	err = s.db.QueryRowContext(ctx, `SELECT cash FROM account WHERE id = 1`).Scan(&state.Cash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, side, quantity, entry_price, peak_price, stop_price, last_price, pending_close, opened_at
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos models.Position
		var side string
		var pendingClose int
		if err := rows.Scan(&pos.Symbol, &side, &pos.Quantity, &pos.EntryPrice,
			&pos.PeakPrice, &pos.StopPrice, &pos.LastPrice, &pendingClose, &pos.OpenedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.Side = models.PositionSide(side)
		pos.PendingClose = pendingClose != 0
		state.Positions = append(state.Positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	return state, nil
}

// LogDecision appends one gate decision to the history.
func (s *SQLiteStore) LogDecision(ctx context.Context, rec *DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO decisions (id, timestamp, symbol, side, kind, quantity, accepted, reason, order_id, fill_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.Symbol, rec.Side, rec.Kind, rec.Quantity,
		boolToInt(rec.Accepted), rec.Reason, rec.OrderID, rec.FillPrice)
	if err != nil {
		return fmt.Errorf("failed to log decision: %w", err)
	}
	return nil
}

// GetDecisions returns decision history matching the filter, newest
// first.
func (s *SQLiteStore) GetDecisions(ctx context.Context, filter DecisionFilter) ([]DecisionRecord, error) {
	query := `SELECT id, timestamp, symbol, side, kind, quantity, accepted, reason, order_id, fill_price FROM decisions`
	var conds []string
	var args []interface{}

	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.RejectedOnly {
		conds = append(conds, "accepted = 0")
	}
	if !filter.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.To)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var accepted int
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &rec.Side, &rec.Kind,
			&rec.Quantity, &accepted, &rec.Reason, &rec.OrderID, &rec.FillPrice); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		rec.Accepted = accepted != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
