package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"atelier/internal/events"
	"atelier/internal/metrics"
	"atelier/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// EventsAPI is the subset of the Calendar API used for sync.
type EventsAPI interface {
	Insert(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
}

// EventIDStore remembers which calendar event belongs to a booking.
type EventIDStore interface {
	SetCalendarEventID(ctx context.Context, bookingID int64, eventID string) error
}

type googleEvents struct {
	svc *gcal.Service
}

func (g googleEvents) Insert(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
}

func (g googleEvents) Delete(ctx context.Context, calendarID, eventID string) error {
	return g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}

// NewGoogleEventsAPI builds a Calendar client from a service-account key file.
func NewGoogleEventsAPI(ctx context.Context, credentialsFile string) (EventsAPI, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return googleEvents{svc: svc}, nil
}

// Syncer mirrors confirmed bookings into a calendar.
type Syncer struct {
	api        EventsAPI
	store      EventIDStore
	calendarID string
	loc        *time.Location
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewSyncer creates a calendar syncer. timeZone is an IANA name such as "Europe/Berlin".
func NewSyncer(api EventsAPI, store EventIDStore, calendarID, timeZone string, logger zerolog.Logger) (*Syncer, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if timeZone == "" {
		timeZone = "UTC"
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
	}
	return &Syncer{
		api:        api,
		store:      store,
		calendarID: calendarID,
		loc:        loc,
		timeout:    30 * time.Second,
		logger:     logger.With().Str("component", "calendar").Logger(),
	}, nil
}

// Subscribe registers the syncer for status changes on bus.
func (s *Syncer) Subscribe(bus *events.EventBus) {
	bus.Subscribe(s.HandleEvent, events.BookingStatusChanged)
}

// HandleEvent inserts an event when a booking is confirmed and deletes it when cancelled.
func (s *Syncer) HandleEvent(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	switch e.Booking.Status {
	case model.StatusConfirmed:
		err = s.insert(ctx, e.Booking)
	case model.StatusCancelled:
		err = s.remove(ctx, e.Booking)
	}
	if err != nil {
		metrics.IncIntegrationError("calendar")
		s.logger.Error().Err(err).Str("reference", e.Booking.Reference).Msg("calendar sync failed")
	}
	return err
}

func (s *Syncer) insert(ctx context.Context, b model.Booking) error {
	if b.CalendarEventID != "" {
		return nil
	}

	ev, err := s.buildEvent(b)
	if err != nil {
		return err
	}
	created, err := s.api.Insert(ctx, s.calendarID, ev)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if err := s.store.SetCalendarEventID(ctx, b.ID, created.Id); err != nil {
		return fmt.Errorf("store event id: %w", err)
	}

	s.logger.Info().Str("reference", b.Reference).Str("event_id", created.Id).Msg("calendar event created")
	return nil
}

func (s *Syncer) remove(ctx context.Context, b model.Booking) error {
	if b.CalendarEventID == "" {
		return nil
	}

	err := s.api.Delete(ctx, s.calendarID, b.CalendarEventID)
	var gerr *googleapi.Error
	if err != nil && !(errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)) {
		return fmt.Errorf("delete event: %w", err)
	}
	if err := s.store.SetCalendarEventID(ctx, b.ID, ""); err != nil {
		return fmt.Errorf("clear event id: %w", err)
	}

	s.logger.Info().Str("reference", b.Reference).Msg("calendar event removed")
	return nil
}

func (s *Syncer) buildEvent(b model.Booking) (*gcal.Event, error) {
	start, err := b.StartsAt(s.loc)
	if err != nil {
		return nil, fmt.Errorf("booking start: %w", err)
	}
	end, err := b.EndsAt(s.loc)
	if err != nil {
		return nil, fmt.Errorf("booking end: %w", err)
	}

	summary := b.ClientName
	if b.ServiceName != "" {
		summary = b.ServiceName + ": " + b.ClientName
	}

	var desc []string
	if b.ClientPhone != "" {
		desc = append(desc, "Phone: "+b.ClientPhone)
	}
	if b.ClientEmail != "" {
		desc = append(desc, "Email: "+b.ClientEmail)
	}
	if b.Notes != "" {
		desc = append(desc, "Notes: "+b.Notes)
	}
	desc = append(desc, "Ref: "+b.Reference)

	return &gcal.Event{
		Summary:     summary,
		Description: strings.Join(desc, "\n"),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: s.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: s.loc.String()},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{"booking_reference": b.Reference},
		},
	}, nil
}
