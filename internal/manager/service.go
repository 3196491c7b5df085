package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"atelier/internal/access"
	"atelier/internal/booking"
	"atelier/internal/db"
	"atelier/internal/events"
	"atelier/internal/metrics"
	"atelier/internal/model"
	"atelier/internal/slots"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the target of an admin operation does not exist.
var ErrNotFound = errors.New("not found")

// Store provides the admin side of the booking store.
type Store interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ListBookings(ctx context.Context, filter db.BookingFilter) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error
	UpdateBookingPayment(ctx context.Context, id int64, status model.PaymentStatus) error

	ListWeeklySchedule(ctx context.Context) ([]model.WeeklySchedule, error)
	SetWeeklySchedule(ctx context.Context, s *model.WeeklySchedule) error

	ListBlockedDates(ctx context.Context, from, to time.Time) ([]model.BlockedDate, error)
	AddBlockedDate(ctx context.Context, date time.Time, reason string) error
	RemoveBlockedDate(ctx context.Context, date time.Time) error

	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
	CreateService(ctx context.Context, s *model.Service) error
	UpdateService(ctx context.Context, s *model.Service) error
}

// Cache drops computed slot lists after writes.
type Cache interface {
	Invalidate(ctx context.Context, date time.Time) error
	InvalidateAll(ctx context.Context) error
}

// Exporter writes the audit workbook.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(event events.Event)
}

// Service provides manager operations. Every method takes the calling principal
// and fails with an access error unless it is an admin.
type Service struct {
	store     Store
	cache     Cache
	exporter  Exporter
	publisher Publisher
	logger    zerolog.Logger
}

// NewService creates a new manager service.
func NewService(store Store, cache Cache, exporter Exporter, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		cache:     cache,
		exporter:  exporter,
		publisher: publisher,
		logger:    logger.With().Str("component", "manager").Logger(),
	}
}

// ListBookings returns bookings based on filter.
func (s *Service) ListBookings(ctx context.Context, p access.Principal, filter db.BookingFilter) ([]model.Booking, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	for field, v := range map[string]string{"from": filter.From, "to": filter.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(model.DateLayout, v); err != nil {
			return nil, &booking.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
		}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &booking.ValidationError{Field: "status", Message: "unknown status"}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.store.ListBookings(ctx, filter)
}

// GetBooking returns a booking by ID.
func (s *Service) GetBooking(ctx context.Context, p access.Principal, id int64) (*model.Booking, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBooking(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return b, err
}

// UpdateStatus moves a booking along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, p access.Principal, id int64, status model.BookingStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, &booking.ValidationError{Field: "status", Message: "unknown status"}
	}
	b, err := s.GetBooking(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(b.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", booking.ErrInvalidTransition, b.Status, status)
	}

	if err := s.store.UpdateBookingStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	previous := b.Status
	b.Status = status
	if status == model.StatusCancelled {
		s.invalidateDate(ctx, b.BookingDate)
	}
	metrics.IncBookingStatusChanged(string(status))

	s.logger.Info().
		Str("admin", p.Subject).
		Int64("booking_id", id).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("booking status changed")

	s.publish(events.Event{Type: events.BookingStatusChanged, Booking: *b, PreviousStatus: previous})
	return b, nil
}

// UpdatePayment records the payment state of a booking.
func (s *Service) UpdatePayment(ctx context.Context, p access.Principal, id int64, status model.PaymentStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, &booking.ValidationError{Field: "payment_status", Message: "unknown payment status"}
	}
	b, err := s.GetBooking(ctx, p, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateBookingPayment(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	previous := b.PaymentStatus
	b.PaymentStatus = status

	s.logger.Info().Str("admin", p.Subject).Int64("booking_id", id).Str("payment", string(status)).Msg("payment status changed")
	s.publish(events.Event{Type: events.BookingPaymentChanged, Booking: *b, PreviousPayment: previous})
	return b, nil
}

// ListSchedule returns the weekly schedule rows.
func (s *Service) ListSchedule(ctx context.Context, p access.Principal) ([]model.WeeklySchedule, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.store.ListWeeklySchedule(ctx)
}

// SetSchedule replaces the opening hours of one weekday.
func (s *Service) SetSchedule(ctx context.Context, p access.Principal, row *model.WeeklySchedule) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if !model.ValidWeekday(row.DayOfWeek) {
		return &booking.ValidationError{Field: "day_of_week", Message: "must be 0-6 (0=Sunday)"}
	}
	start, err := slots.ParseClock(row.StartTime)
	if err != nil {
		return &booking.ValidationError{Field: "start_time", Message: "expected HH:MM"}
	}
	end, err := slots.ParseClock(row.EndTime)
	if err != nil {
		return &booking.ValidationError{Field: "end_time", Message: "expected HH:MM"}
	}
	if row.IsAvailable && end <= start {
		return &booking.ValidationError{Field: "end_time", Message: "must be after start_time"}
	}

	if err := s.store.SetWeeklySchedule(ctx, row); err != nil {
		return err
	}
	s.invalidateAll(ctx)

	s.logger.Info().
		Str("admin", p.Subject).
		Int("day", row.DayOfWeek).
		Str("start", row.StartTime).
		Str("end", row.EndTime).
		Bool("available", row.IsAvailable).
		Msg("schedule updated")
	return nil
}

// ListBlockedDates returns blocked dates in [from, to]; zero bounds are open.
func (s *Service) ListBlockedDates(ctx context.Context, p access.Principal, from, to time.Time) ([]model.BlockedDate, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.store.ListBlockedDates(ctx, from, to)
}

// BlockDate removes a whole day from booking. Existing bookings are kept.
func (s *Service) BlockDate(ctx context.Context, p access.Principal, date time.Time, reason string) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if err := s.store.AddBlockedDate(ctx, date, strings.TrimSpace(reason)); err != nil {
		return err
	}
	s.invalidate(ctx, date)
	s.logger.Info().Str("admin", p.Subject).Str("date", date.Format(model.DateLayout)).Msg("date blocked")
	return nil
}

// UnblockDate reopens a blocked day.
func (s *Service) UnblockDate(ctx context.Context, p access.Principal, date time.Time) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if err := s.store.RemoveBlockedDate(ctx, date); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("blocked date %s: %w", date.Format(model.DateLayout), ErrNotFound)
		}
		return err
	}
	s.invalidate(ctx, date)
	s.logger.Info().Str("admin", p.Subject).Str("date", date.Format(model.DateLayout)).Msg("date unblocked")
	return nil
}

// ListServices returns the full catalog including inactive entries.
func (s *Service) ListServices(ctx context.Context, p access.Principal) ([]model.Service, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.store.ListServices(ctx, false)
}

// CreateService adds a catalog entry.
func (s *Service) CreateService(ctx context.Context, p access.Principal, svc *model.Service) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return err
	}
	s.logger.Info().Str("admin", p.Subject).Int64("service_id", svc.ID).Str("name", svc.Name).Msg("service created")
	return nil
}

// UpdateService edits a catalog entry. Existing bookings keep their duration snapshot.
func (s *Service) UpdateService(ctx context.Context, p access.Principal, svc *model.Service) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.store.UpdateService(ctx, svc); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("service %d: %w", svc.ID, ErrNotFound)
		}
		return err
	}
	s.logger.Info().Str("admin", p.Subject).Int64("service_id", svc.ID).Msg("service updated")
	return nil
}

// Export writes the audit workbook to w.
func (s *Service) Export(ctx context.Context, p access.Principal, w io.Writer) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	if s.exporter == nil {
		return fmt.Errorf("export is not configured")
	}
	return s.exporter.Export(ctx, w)
}

func validateService(svc *model.Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return &booking.ValidationError{Field: "name", Message: "is required"}
	}
	if svc.DurationMinutes <= 0 {
		return &booking.ValidationError{Field: "duration_minutes", Message: "must be positive"}
	}
	if svc.PriceCents < 0 {
		return &booking.ValidationError{Field: "price_cents", Message: "cannot be negative"}
	}
	return nil
}

func (s *Service) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *Service) invalidateDate(ctx context.Context, date string) {
	if d, err := time.Parse(model.DateLayout, date); err == nil {
		s.invalidate(ctx, d)
	}
}

func (s *Service) invalidate(ctx context.Context, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, date); err != nil {
		s.logger.Warn().Err(err).Msg("slot cache invalidation failed")
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("slot cache invalidation failed")
	}
}
