package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier/internal/model"
)

const bookingSelect = `
	SELECT b.id, b.reference, b.service_id, COALESCE(s.name, '') AS service_name,
	       b.booking_date, b.booking_time, b.duration_minutes, b.status, b.payment_status,
	       b.client_name, b.client_email, b.client_phone, b.notes, b.calendar_event_id,
	       b.created_at, b.updated_at
	FROM bookings b
	LEFT JOIN services s ON s.id = b.service_id`

// BookingFilter narrows ListBookings. Zero values mean no constraint.
type BookingFilter struct {
	From   string // YYYY-MM-DD inclusive
	To     string // YYYY-MM-DD inclusive
	Status model.BookingStatus
	Limit  int
	Offset int
}

// CreateBooking inserts a booking. ErrSlotTaken is returned when another
// non-cancelled booking already starts at the same date and time.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentUnpaid
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO bookings (reference, service_id, booking_date, booking_time, duration_minutes,
			status, payment_status, client_name, client_email, client_phone, notes,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.ServiceID, b.BookingDate, toStoredClock(b.BookingTime), b.DurationMinutes,
		b.Status, b.PaymentStatus, b.ClientName, b.ClientEmail, b.ClientPhone, b.Notes,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// GetBooking returns a booking by ID.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	return db.getBooking(ctx, bookingSelect+` WHERE b.id = ?`, id)
}

// GetBookingByReference returns a booking by its public reference.
func (db *DB) GetBookingByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return db.getBooking(ctx, bookingSelect+` WHERE b.reference = ?`, reference)
}

func (db *DB) getBooking(ctx context.Context, query string, arg interface{}) (*model.Booking, error) {
	var b model.Booking
	err := db.GetContext(ctx, &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.BookingTime = fromStoredClock(b.BookingTime)
	return &b, nil
}

// ListBookings returns bookings ordered by date and time.
func (db *DB) ListBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.From != "" {
		where = append(where, "b.booking_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, "b.booking_date <= ?")
		args = append(args, filter.To)
	}
	if filter.Status != "" {
		where = append(where, "b.status = ?")
		args = append(args, filter.Status)
	}

	query := bookingSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY b.booking_date, b.booking_time, b.id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return db.selectBookings(ctx, query, args...)
}

// GetNonCancelledBookingsForDate returns the bookings occupying slots on date.
func (db *DB) GetNonCancelledBookingsForDate(ctx context.Context, date time.Time) ([]model.Booking, error) {
	return db.selectBookings(ctx,
		bookingSelect+` WHERE b.booking_date = ? AND b.status != 'cancelled' ORDER BY b.booking_time`,
		dateKey(date),
	)
}

func (db *DB) selectBookings(ctx context.Context, query string, args ...interface{}) ([]model.Booking, error) {
	bookings := []model.Booking{}
	if err := db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].BookingTime = fromStoredClock(bookings[i].BookingTime)
	}
	return bookings, nil
}

// UpdateBookingStatus sets the status of a booking.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	return db.updateBooking(ctx, id, "status", string(status))
}

// UpdateBookingPayment sets the payment status of a booking.
func (db *DB) UpdateBookingPayment(ctx context.Context, id int64, status model.PaymentStatus) error {
	return db.updateBooking(ctx, id, "payment_status", string(status))
}

// SetCalendarEventID stores the external calendar event for a booking.
func (db *DB) SetCalendarEventID(ctx context.Context, id int64, eventID string) error {
	return db.updateBooking(ctx, id, "calendar_event_id", eventID)
}

func (db *DB) updateBooking(ctx context.Context, id int64, column, value string) error {
	res, err := db.ExecContext(ctx,
		fmt.Sprintf("UPDATE bookings SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update booking %d %s: %w", id, column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
