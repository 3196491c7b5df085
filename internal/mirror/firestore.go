package mirror

import (
	"context"
	"fmt"
	"time"

	"atelier/internal/events"
	"atelier/internal/metrics"
	"atelier/internal/model"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// DocumentWriter upserts a document.
type DocumentWriter interface {
	Set(ctx context.Context, collection, id string, data interface{}) error
	Close() error
}

type firestoreWriter struct {
	client *firestore.Client
}

func (w firestoreWriter) Set(ctx context.Context, collection, id string, data interface{}) error {
	_, err := w.client.Collection(collection).Doc(id).Set(ctx, data)
	return err
}

func (w firestoreWriter) Close() error {
	return w.client.Close()
}

// NewFirestoreWriter initializes the Firebase app and its Firestore client.
func NewFirestoreWriter(ctx context.Context, projectID, credentialsFile string) (DocumentWriter, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return firestoreWriter{client: client}, nil
}

// bookingDocument is the mirrored shape of a booking.
type bookingDocument struct {
	Reference       string    `firestore:"reference"`
	ServiceID       int64     `firestore:"serviceId"`
	ServiceName     string    `firestore:"serviceName"`
	BookingDate     string    `firestore:"bookingDate"`
	BookingTime     string    `firestore:"bookingTime"`
	DurationMinutes int       `firestore:"durationMinutes"`
	Status          string    `firestore:"status"`
	PaymentStatus   string    `firestore:"paymentStatus"`
	ClientName      string    `firestore:"clientName"`
	ClientEmail     string    `firestore:"clientEmail,omitempty"`
	ClientPhone     string    `firestore:"clientPhone,omitempty"`
	Notes           string    `firestore:"notes,omitempty"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newBookingDocument(b model.Booking, at time.Time) bookingDocument {
	return bookingDocument{
		Reference:       b.Reference,
		ServiceID:       b.ServiceID,
		ServiceName:     b.ServiceName,
		BookingDate:     b.BookingDate,
		BookingTime:     b.BookingTime,
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		ClientName:      b.ClientName,
		ClientEmail:     b.ClientEmail,
		ClientPhone:     b.ClientPhone,
		Notes:           b.Notes,
		UpdatedAt:       at,
	}
}

// Mirror copies every booking change into a Firestore collection keyed by reference.
type Mirror struct {
	writer     DocumentWriter
	collection string
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewMirror(writer DocumentWriter, collection string, logger zerolog.Logger) *Mirror {
	if collection == "" {
		collection = "bookings"
	}
	return &Mirror{
		writer:     writer,
		collection: collection,
		timeout:    15 * time.Second,
		logger:     logger.With().Str("component", "mirror").Logger(),
	}
}

// Subscribe registers the mirror for all booking events on bus.
func (m *Mirror) Subscribe(bus *events.EventBus) {
	bus.Subscribe(m.HandleEvent, events.BookingCreated, events.BookingStatusChanged, events.BookingPaymentChanged)
}

// HandleEvent upserts the booking document.
func (m *Mirror) HandleEvent(e events.Event) error {
	if e.Booking.Reference == "" {
		return fmt.Errorf("booking without reference")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.writer.Set(ctx, m.collection, e.Booking.Reference, newBookingDocument(e.Booking, e.CreatedAt)); err != nil {
		metrics.IncIntegrationError("firestore")
		m.logger.Error().Err(err).Str("reference", e.Booking.Reference).Msg("mirror write failed")
		return err
	}
	m.logger.Debug().Str("reference", e.Booking.Reference).Str("event", string(e.Type)).Msg("booking mirrored")
	return nil
}

// Close releases the Firestore client.
func (m *Mirror) Close() error {
	return m.writer.Close()
}
