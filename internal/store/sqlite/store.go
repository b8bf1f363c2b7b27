// Package sqlite persists orders, portfolios and polled market data.
// A single-writer connection in WAL mode is plenty for a simulation
// workload; positions ride inside the portfolio row as JSON so a
// portfolio save is one statement.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/paper"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database at path with WAL mode and the
// schema applied.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id    TEXT    PRIMARY KEY,
			session_id  TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			strike      INTEGER NOT NULL DEFAULT 0,
			type        TEXT    NOT NULL,
			expiry      TEXT    NOT NULL DEFAULT '',
			side        TEXT    NOT NULL,
			quantity    INTEGER NOT NULL,
			order_type  TEXT    NOT NULL,
			limit_price REAL    NOT NULL DEFAULT 0,
			entry_price REAL    NOT NULL,
			lot_size    INTEGER NOT NULL,
			total_value REAL    NOT NULL,
			status      TEXT    NOT NULL,
			order_time  INTEGER NOT NULL,
			fill_time   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_session ON orders (session_id, order_time DESC);

		CREATE TABLE IF NOT EXISTS portfolios (
			session_id   TEXT PRIMARY KEY,
			balance      REAL NOT NULL,
			total_pnl    REAL NOT NULL DEFAULT 0,
			day_pnl      REAL NOT NULL DEFAULT 0,
			positions    TEXT NOT NULL DEFAULT '[]',
			last_updated INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS nifty_history (
			date     TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS option_snapshots (
			strike   INTEGER NOT NULL,
			type     TEXT    NOT NULL,
			expiry   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			ltp      REAL    NOT NULL,
			oi       INTEGER NOT NULL DEFAULT 0,
			iv       REAL    NOT NULL DEFAULT 0,
			volume   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (strike, type, expiry, ts)
		);
	`)
	return err
}

const expiryLayout = "2006-01-02"

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(expiryLayout)
}

func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(expiryLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SaveOrder inserts one filled order.
func (s *Store) SaveOrder(ctx context.Context, o *model.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, session_id, symbol, strike, type, expiry, side,
			quantity, order_type, limit_price, entry_price, lot_size, total_value,
			status, order_time, fill_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.OrderID, o.SessionID, o.Symbol, o.Strike, o.Type, formatExpiry(o.Expiry), o.Side,
		o.Quantity, o.OrderType, o.LimitPrice, o.EntryPrice, o.LotSize, o.TotalValue,
		o.Status, o.OrderTime.Unix(), o.FillTime.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert order: %w", err)
	}
	return nil
}

// ListOrders returns a session's orders newest first, with optional
// status/type filters and limit/offset pagination.
func (s *Store) ListOrders(ctx context.Context, f paper.OrderFilter) ([]model.Order, error) {
	query := `
		SELECT order_id, session_id, symbol, strike, type, expiry, side,
			quantity, order_type, limit_price, entry_price, lot_size, total_value,
			status, order_time, fill_time
		FROM orders WHERE session_id = ?`
	args := []interface{}{f.SessionID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY order_time DESC, order_id LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var expiry string
		var orderTS, fillTS int64
		if err := rows.Scan(&o.OrderID, &o.SessionID, &o.Symbol, &o.Strike, &o.Type, &expiry,
			&o.Side, &o.Quantity, &o.OrderType, &o.LimitPrice, &o.EntryPrice, &o.LotSize,
			&o.TotalValue, &o.Status, &orderTS, &fillTS); err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		o.Expiry = parseExpiry(expiry)
		o.OrderTime = time.Unix(orderTS, 0).UTC()
		o.FillTime = time.Unix(fillTS, 0).UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// DeleteOrders removes every order of a session and reports the count.
func (s *Store) DeleteOrders(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("sqlite delete orders: %w", err)
	}
	return res.RowsAffected()
}

// GetPortfolio loads one portfolio, or (nil, nil) when the session has
// none yet.
func (s *Store) GetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, balance, total_pnl, day_pnl, positions, last_updated
		FROM portfolios WHERE session_id = ?
	`, sessionID)
	pf, err := scanPortfolio(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get portfolio: %w", err)
	}
	return pf, nil
}

// SavePortfolio upserts the portfolio row, positions serialized as JSON.
func (s *Store) SavePortfolio(ctx context.Context, pf *model.Portfolio) error {
	positions := pf.Positions
	if positions == nil {
		positions = []model.Position{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO portfolios (session_id, balance, total_pnl, day_pnl, positions, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			balance = excluded.balance,
			total_pnl = excluded.total_pnl,
			day_pnl = excluded.day_pnl,
			positions = excluded.positions,
			last_updated = excluded.last_updated
	`, pf.SessionID, pf.Balance, pf.TotalPnl, pf.DayPnl, string(data), pf.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("sqlite save portfolio: %w", err)
	}
	return nil
}

// ListPortfolios loads every portfolio. The reprice sweep walks this.
func (s *Store) ListPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, balance, total_pnl, day_pnl, positions, last_updated
		FROM portfolios
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query portfolios: %w", err)
	}
	defer rows.Close()

	var out []model.Portfolio
	for rows.Next() {
		pf, err := scanPortfolio(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan portfolio: %w", err)
		}
		out = append(out, *pf)
	}
	return out, rows.Err()
}

func scanPortfolio(scan func(dest ...interface{}) error) (*model.Portfolio, error) {
	var pf model.Portfolio
	var positions string
	var updated int64
	if err := scan(&pf.SessionID, &pf.Balance, &pf.TotalPnl, &pf.DayPnl, &positions, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(positions), &pf.Positions); err != nil {
		return nil, fmt.Errorf("unmarshal positions: %w", err)
	}
	pf.LastUpdated = time.Unix(updated, 0).UTC()
	return &pf, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
