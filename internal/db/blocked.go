package db

import (
	"context"
	"strings"
	"time"

	"atelier/internal/model"
)

// IsDateBlocked reports whether date is fully excluded from booking.
func (db *DB) IsDateBlocked(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blocked_dates WHERE date = ?",
		dateKey(date),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddBlockedDate blocks date, replacing the reason if it is already blocked.
func (db *DB) AddBlockedDate(ctx context.Context, date time.Time, reason string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO blocked_dates (date, reason, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`,
		dateKey(date), reason, time.Now().UTC(),
	)
	return err
}

// RemoveBlockedDate unblocks date. ErrNotFound is returned if it was not blocked.
func (db *DB) RemoveBlockedDate(ctx context.Context, date time.Time) error {
	res, err := db.ExecContext(ctx, "DELETE FROM blocked_dates WHERE date = ?", dateKey(date))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlockedDates returns blocked dates within [from, to]. Zero bounds are open.
func (db *DB) ListBlockedDates(ctx context.Context, from, to time.Time) ([]model.BlockedDate, error) {
	var (
		where []string
		args  []interface{}
	)
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dateKey(from))
	}
	if !to.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, dateKey(to))
	}

	query := "SELECT date, reason, created_at FROM blocked_dates"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date"

	dates := []model.BlockedDate{}
	if err := db.SelectContext(ctx, &dates, query, args...); err != nil {
		return nil, err
	}
	return dates, nil
}
