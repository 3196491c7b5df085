package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"atelier/internal/model"
)

// GetWeeklyScheduleForWeekday returns the schedule row for weekday, or nil when absent.
func (db *DB) GetWeeklyScheduleForWeekday(ctx context.Context, weekday time.Weekday) (*model.WeeklySchedule, error) {
	var s model.WeeklySchedule
	err := db.GetContext(ctx, &s, `
		SELECT day_of_week, start_time, end_time, is_available, updated_at
		FROM weekly_schedule
		WHERE day_of_week = ?`,
		int(weekday),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StartTime = fromStoredClock(s.StartTime)
	s.EndTime = fromStoredClock(s.EndTime)
	return &s, nil
}

// ListWeeklySchedule returns all configured weekday rows ordered Sunday first.
func (db *DB) ListWeeklySchedule(ctx context.Context) ([]model.WeeklySchedule, error) {
	rows := []model.WeeklySchedule{}
	if err := db.SelectContext(ctx, &rows, `
		SELECT day_of_week, start_time, end_time, is_available, updated_at
		FROM weekly_schedule
		ORDER BY day_of_week`,
	); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].StartTime = fromStoredClock(rows[i].StartTime)
		rows[i].EndTime = fromStoredClock(rows[i].EndTime)
	}
	return rows, nil
}

// SetWeeklySchedule creates or replaces the row for s.DayOfWeek.
func (db *DB) SetWeeklySchedule(ctx context.Context, s *model.WeeklySchedule) error {
	if s == nil {
		return fmt.Errorf("schedule is nil")
	}
	if !model.ValidWeekday(s.DayOfWeek) {
		return fmt.Errorf("invalid day of week %d", s.DayOfWeek)
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO weekly_schedule (day_of_week, start_time, end_time, is_available, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			is_available = excluded.is_available,
			updated_at = excluded.updated_at`,
		s.DayOfWeek, toStoredClock(s.StartTime), toStoredClock(s.EndTime), s.IsAvailable, now,
	)
	if err != nil {
		return fmt.Errorf("upsert schedule day %d: %w", s.DayOfWeek, err)
	}
	s.UpdatedAt = now
	return nil
}
