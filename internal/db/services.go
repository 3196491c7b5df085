package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"atelier/internal/model"
)

const serviceColumns = `id, name, description, duration_minutes, price_cents, payment_link,
	is_active, sort_order, created_at, updated_at`

// CreateService inserts a catalog entry and sets its ID.
// A non-zero ID is kept, which lets the schedule seed keep stable IDs.
func (db *DB) CreateService(ctx context.Context, s *model.Service) error {
	if s == nil {
		return fmt.Errorf("service is nil")
	}

	now := time.Now().UTC()
	var id interface{}
	if s.ID > 0 {
		id = s.ID
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, duration_minutes, price_cents, payment_link,
			is_active, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.PaymentLink,
		s.IsActive, s.SortOrder, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = newID
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// UpdateService overwrites the editable fields of a service.
func (db *DB) UpdateService(ctx context.Context, s *model.Service) error {
	if s == nil {
		return fmt.Errorf("service is nil")
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE services
		SET name = ?, description = ?, duration_minutes = ?, price_cents = ?, payment_link = ?,
			is_active = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.PaymentLink,
		s.IsActive, s.SortOrder, now, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update service %d: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.UpdatedAt = now
	return nil
}

// GetService returns a service by ID regardless of its active flag.
func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	err := db.GetContext(ctx, &s, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns the catalog ordered for display.
func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`

	services := []model.Service{}
	if err := db.SelectContext(ctx, &services, query); err != nil {
		return nil, err
	}
	return services, nil
}

// GetServiceDuration returns the duration of an active service.
// found is false when the service does not exist or is inactive.
func (db *DB) GetServiceDuration(ctx context.Context, id int64) (minutes int, found bool, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT duration_minutes FROM services WHERE id = ? AND is_active = 1`, id,
	).Scan(&minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return minutes, true, nil
}
