package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// InsertCandles writes a batch of index bars in one transaction.
// Re-polled bars collide on the primary key and are ignored, so the
// poller can overlap its windows freely.
func (s *Store) InsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO nifty_history (date, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(c.Date, c.Interval, c.Timestamp.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] committed %d candle(s)", len(candles))
	return nil
}

// ListCandles reads stored bars for one date and interval, ascending.
func (s *Store) ListCandles(ctx context.Context, date, interval string) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, interval, ts, open, high, low, close, volume
		FROM nifty_history
		WHERE date = ? AND interval = ?
		ORDER BY ts ASC
	`, date, interval)
	if err != nil {
		return nil, fmt.Errorf("sqlite query history: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var ts int64
		if err := rows.Scan(&c.Date, &c.Interval, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// InsertOptionSnapshots writes one chain snapshot in one transaction.
// Duplicates on (strike, type, expiry, ts) are ignored.
func (s *Store) InsertOptionSnapshots(ctx context.Context, options []model.OptionQuote) error {
	if len(options) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO option_snapshots (strike, type, expiry, ts, ltp, oi, iv, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range options {
		if _, err := stmt.Exec(o.Strike, o.Type, formatExpiry(o.Expiry), o.Timestamp.Unix(),
			o.LTP, o.OI, o.IV, o.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert option snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] committed %d option snapshot(s)", len(options))
	return nil
}
