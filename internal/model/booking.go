package model

import "time"

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Occupies reports whether a booking in this status claims its slot.
func (s BookingStatus) Occupies() bool {
	return s != StatusCancelled
}

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
// Completed and cancelled are terminal.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus is set by admins; payments themselves happen off-site.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// Booking is an appointment for one service at a wall-clock start time.
type Booking struct {
	ID              int64         `db:"id" json:"id"`
	Reference       string        `db:"reference" json:"reference"`
	ServiceID       int64         `db:"service_id" json:"service_id"`
	ServiceName     string        `db:"service_name" json:"service_name,omitempty"`
	BookingDate     string        `db:"booking_date" json:"booking_date"` // YYYY-MM-DD
	BookingTime     string        `db:"booking_time" json:"booking_time"` // HH:MM
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	Status          BookingStatus `db:"status" json:"status"`
	PaymentStatus   PaymentStatus `db:"payment_status" json:"payment_status"`
	ClientName      string        `db:"client_name" json:"client_name"`
	ClientEmail     string        `db:"client_email" json:"client_email,omitempty"`
	ClientPhone     string        `db:"client_phone" json:"client_phone,omitempty"`
	Notes           string        `db:"notes" json:"notes,omitempty"`
	CalendarEventID string        `db:"calendar_event_id" json:"-"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// StartsAt returns the booking start as a naive wall-clock time in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout+" 15:04", b.BookingDate+" "+b.BookingTime, loc)
}

// EndsAt returns StartsAt plus the booked duration.
func (b *Booking) EndsAt(loc *time.Location) (time.Time, error) {
	start, err := b.StartsAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(b.DurationMinutes) * time.Minute), nil
}
