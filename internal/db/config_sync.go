package db

import (
	"context"
	"fmt"
	"time"

	"atelier/internal/config"
)

// SyncScheduleFromConfig applies schedule.yaml to the database.
// It upserts services and weekday rows and blocks configured holidays.
// Weekdays missing from the file are left untouched so admin edits survive a reload.
func (db *DB) SyncScheduleFromConfig(ctx context.Context, cfg *config.ScheduleConfig) error {
	if cfg == nil {
		return fmt.Errorf("schedule config is nil")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	for i, s := range cfg.Services {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, description, duration_minutes, price_cents, payment_link,
				is_active, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				duration_minutes = excluded.duration_minutes,
				price_cents = excluded.price_cents,
				payment_link = excluded.payment_link,
				is_active = excluded.is_active,
				sort_order = excluded.sort_order,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.PaymentLink,
			s.IsActive, i, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %d: %w", s.ID, err)
		}
	}

	for _, d := range cfg.Week {
		start, end := d.Start, d.End
		if start == "" {
			start = "00:00"
		}
		if end == "" {
			end = "00:00"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_schedule (day_of_week, start_time, end_time, is_available, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(day_of_week) DO UPDATE SET
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				is_available = excluded.is_available,
				updated_at = excluded.updated_at`,
			d.Day, toStoredClock(start), toStoredClock(end), !d.Closed, now,
		)
		if err != nil {
			return fmt.Errorf("sync schedule day %d: %w", d.Day, err)
		}
	}

	for _, h := range cfg.Holidays {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocked_dates (date, reason, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(date) DO NOTHING`,
			h.Date, h.Name, now,
		)
		if err != nil {
			return fmt.Errorf("sync holiday %s: %w", h.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.logger.Info().
		Int("services", len(cfg.Services)).
		Int("days", len(cfg.Week)).
		Int("holidays", len(cfg.Holidays)).
		Msg("schedule config synced")
	return nil
}
