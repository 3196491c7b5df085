package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"atelier/internal/db"
	"atelier/internal/events"
	"atelier/internal/metrics"
	"atelier/internal/model"
	"atelier/internal/reservation"
	"atelier/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxNameLength  = 200
	maxNotesLength = 2000
)

// Store provides the booking persistence used by the public flow.
type Store interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBookingByReference(ctx context.Context, reference string) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error
}

// Availability computes and invalidates slot lists.
type Availability interface {
	SlotsForDuration(ctx context.Context, date time.Time, duration int) ([]slots.Slot, error)
	Invalidate(ctx context.Context, date time.Time) error
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(event events.Event)
}

// Request is a public booking request.
type Request struct {
	ServiceID   int64  `json:"service_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	Time        string `json:"time"` // HH:MM
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

// Service implements the public booking flow.
type Service struct {
	store        Store
	availability Availability
	holder       reservation.Holder
	publisher    Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	store Store,
	availability Availability,
	holder reservation.Holder,
	publisher Publisher,
	logger zerolog.Logger,
) *Service {
	if holder == nil {
		holder = reservation.NoopHolder{}
	}
	return &Service{
		store:        store,
		availability: availability,
		holder:       holder,
		publisher:    publisher,
		logger:       logger.With().Str("component", "booking").Logger(),
		now:          time.Now,
	}
}

// SetClock overrides the wall clock used to reject past slots.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create books a slot for a client. The booking starts as pending.
func (s *Service) Create(ctx context.Context, req Request) (*model.Booking, error) {
	b, err := s.create(ctx, req)
	switch {
	case err == nil:
		metrics.IncBookingCreated("created")
	case IsValidation(err):
		metrics.IncBookingCreated("invalid")
	case errors.Is(err, ErrSlotUnavailable):
		metrics.IncBookingCreated("conflict")
	case errors.Is(err, ErrUnknownService):
		metrics.IncBookingCreated("unknown_service")
	default:
		metrics.IncBookingCreated("error")
	}
	return b, err
}

func (s *Service) create(ctx context.Context, req Request) (*model.Booking, error) {
	date, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	svc, err := s.store.GetService(ctx, req.ServiceID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !svc.IsActive) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownService, req.ServiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	available, err := s.availability.SlotsForDuration(ctx, date, svc.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	if slot, ok := slots.Find(available, req.Time); !ok || !slot.Available {
		return nil, ErrSlotUnavailable
	}

	token, err := s.holder.Hold(ctx, req.Date, req.Time)
	switch {
	case errors.Is(err, reservation.ErrHeld):
		return nil, ErrSlotUnavailable
	case err != nil:
		// The unique index still guards the insert.
		s.logger.Warn().Err(err).Str("date", req.Date).Str("time", req.Time).Msg("slot hold failed")
	}
	defer func() {
		if err := s.holder.Release(context.WithoutCancel(ctx), req.Date, req.Time, token); err != nil {
			s.logger.Warn().Err(err).Msg("slot hold release failed")
		}
	}()

	b := &model.Booking{
		Reference:       uuid.NewString(),
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		BookingDate:     req.Date,
		BookingTime:     req.Time,
		DurationMinutes: svc.DurationMinutes,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentUnpaid,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		ClientPhone:     req.ClientPhone,
		Notes:           req.Notes,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, db.ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.invalidate(ctx, date)

	s.logger.Info().
		Str("reference", b.Reference).
		Int64("service_id", b.ServiceID).
		Str("date", b.BookingDate).
		Str("time", b.BookingTime).
		Msg("booking created")

	if s.publisher != nil {
		s.publisher.Publish(events.Event{Type: events.BookingCreated, Booking: *b})
	}
	return b, nil
}

// GetByReference returns a booking by its public reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	b, err := s.store.GetBookingByReference(ctx, strings.TrimSpace(reference))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// Cancel cancels a pending or confirmed booking by reference.
func (s *Service) Cancel(ctx context.Context, reference string) (*model.Booking, error) {
	b, err := s.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(b.Status, model.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, model.StatusCancelled)
	}

	if err := s.store.UpdateBookingStatus(ctx, b.ID, model.StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	previous := b.Status
	b.Status = model.StatusCancelled
	if date, err := time.Parse(model.DateLayout, b.BookingDate); err == nil {
		s.invalidate(ctx, date)
	}
	metrics.IncBookingStatusChanged(string(model.StatusCancelled))

	s.logger.Info().Str("reference", b.Reference).Msg("booking cancelled by client")

	if s.publisher != nil {
		s.publisher.Publish(events.Event{
			Type:           events.BookingStatusChanged,
			Booking:        *b,
			PreviousStatus: previous,
		})
	}
	return b, nil
}

func (s *Service) invalidate(ctx context.Context, date time.Time) {
	if err := s.availability.Invalidate(ctx, date); err != nil {
		s.logger.Warn().Err(err).Str("date", date.Format(model.DateLayout)).Msg("slot cache invalidation failed")
	}
}

func (s *Service) validate(req *Request) (time.Time, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.Notes = strings.TrimSpace(req.Notes)

	if req.ServiceID <= 0 {
		return time.Time{}, invalid("service_id", "is required")
	}

	date, err := time.Parse(model.DateLayout, req.Date)
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD")
	}
	clock, err := slots.ParseClock(req.Time)
	if err != nil {
		return time.Time{}, invalid("time", "expected HH:MM")
	}

	now := s.now()
	today := now.Format(model.DateLayout)
	if req.Date < today {
		return time.Time{}, invalid("date", "is in the past")
	}
	if req.Date == today && clock <= now.Hour()*60+now.Minute() {
		return time.Time{}, invalid("time", "is in the past")
	}

	if req.ClientName == "" {
		return time.Time{}, invalid("client_name", "is required")
	}
	if utf8.RuneCountInString(req.ClientName) > maxNameLength {
		return time.Time{}, invalid("client_name", "is too long")
	}
	if req.ClientEmail == "" && req.ClientPhone == "" {
		return time.Time{}, invalid("client_email", "email or phone is required")
	}
	if req.ClientEmail != "" {
		if _, err := mail.ParseAddress(req.ClientEmail); err != nil {
			return time.Time{}, invalid("client_email", "is not a valid address")
		}
	}
	if req.ClientPhone != "" && !validPhone(req.ClientPhone) {
		return time.Time{}, invalid("client_phone", "is not a valid phone number")
	}
	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		return time.Time{}, invalid("notes", "is too long")
	}

	return date, nil
}

func validPhone(p string) bool {
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
