package manager

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"atelier/internal/access"
	"atelier/internal/booking"
	"atelier/internal/db"
	"atelier/internal/events"
	"atelier/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var admin = access.Principal{Subject: "ops", Admin: true}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Invalidate(ctx context.Context, date time.Time) error {
	return m.Called(date.Format(model.DateLayout)).Error(0)
}

func (m *mockCache) InvalidateAll(ctx context.Context) error {
	return m.Called().Error(0)
}

type exporterFunc func(ctx context.Context, w io.Writer) error

func (f exporterFunc) Export(ctx context.Context, w io.Writer) error { return f(ctx, w) }

type fixture struct {
	store  *db.DB
	cache  *mockCache
	svc    *Service
	events []events.Event
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "manager.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, cache: &mockCache{}}
	bus := events.NewEventBus()
	bus.Subscribe(func(e events.Event) error { f.events = append(f.events, e); return nil },
		events.BookingStatusChanged, events.BookingPaymentChanged)
	export := exporterFunc(func(_ context.Context, w io.Writer) error {
		_, err := w.Write([]byte("xlsx"))
		return err
	})
	f.svc = NewService(store, f.cache, export, bus, zerolog.Nop())
	return f
}

func (f *fixture) seedBooking(t *testing.T) *model.Booking {
	t.Helper()
	ctx := context.Background()
	svc := &model.Service{Name: "Massage", DurationMinutes: 60, IsActive: true}
	require.NoError(t, f.store.CreateService(ctx, svc))
	b := &model.Booking{
		Reference: "ref-1", ServiceID: svc.ID, BookingDate: "2026-03-09", BookingTime: "10:00",
		DurationMinutes: 60, ClientName: "Ada",
	}
	require.NoError(t, f.store.CreateBooking(ctx, b))
	return b
}

func TestAdminOperationsRequirePrincipal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	anon := access.Anonymous

	_, err := f.svc.ListBookings(ctx, anon, db.BookingFilter{})
	assert.True(t, access.IsAccessDenied(err))
	_, err = f.svc.UpdateStatus(ctx, anon, 1, model.StatusConfirmed)
	assert.True(t, access.IsAccessDenied(err))
	assert.True(t, access.IsAccessDenied(f.svc.BlockDate(ctx, anon, time.Now(), "")))
	assert.True(t, access.IsAccessDenied(f.svc.SetSchedule(ctx, anon, &model.WeeklySchedule{})))
	assert.True(t, access.IsAccessDenied(f.svc.Export(ctx, anon, io.Discard)))
	assert.Empty(t, f.events)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.seedBooking(t)

	got, err := f.svc.UpdateStatus(ctx, admin, b.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	require.Len(t, f.events, 1)
	assert.Equal(t, model.StatusPending, f.events[0].PreviousStatus)

	_, err = f.svc.UpdateStatus(ctx, admin, b.ID, model.StatusPending)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	f.cache.On("Invalidate", "2026-03-09").Return(nil).Once()
	_, err = f.svc.UpdateStatus(ctx, admin, b.ID, model.StatusCancelled)
	require.NoError(t, err)
	f.cache.AssertExpectations(t)

	_, err = f.svc.UpdateStatus(ctx, admin, b.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, admin, b.ID, "archived")
	assert.True(t, booking.IsValidation(err))

	_, err = f.svc.UpdateStatus(ctx, admin, 999, model.StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.seedBooking(t)

	got, err := f.svc.UpdatePayment(ctx, admin, b.ID, model.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	require.Len(t, f.events, 1)
	assert.Equal(t, events.BookingPaymentChanged, f.events[0].Type)
	assert.Equal(t, model.PaymentUnpaid, f.events[0].PreviousPayment)
	assert.Empty(t, f.events[0].PreviousStatus)

	_, err = f.svc.UpdatePayment(ctx, admin, b.ID, "maybe")
	assert.True(t, booking.IsValidation(err))
}

func TestListBookings_Validation(t *testing.T) {
	f := setup(t)
	f.seedBooking(t)
	ctx := context.Background()

	list, err := f.svc.ListBookings(ctx, admin, db.BookingFilter{From: "2026-03-01", To: "2026-03-31"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListBookings(ctx, admin, db.BookingFilter{From: "March"})
	assert.True(t, booking.IsValidation(err))
	_, err = f.svc.ListBookings(ctx, admin, db.BookingFilter{Status: "lost"})
	assert.True(t, booking.IsValidation(err))
}

func TestSetSchedule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.cache.On("InvalidateAll").Return(nil).Once()
	require.NoError(t, f.svc.SetSchedule(ctx, admin, &model.WeeklySchedule{
		DayOfWeek: 2, StartTime: "10:00", EndTime: "18:00", IsAvailable: true,
	}))
	f.cache.AssertExpectations(t)

	rows, err := f.svc.ListSchedule(ctx, admin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "18:00", rows[0].EndTime)

	bad := []*model.WeeklySchedule{
		{DayOfWeek: 9, StartTime: "10:00", EndTime: "18:00"},
		{DayOfWeek: 1, StartTime: "10", EndTime: "18:00"},
		{DayOfWeek: 1, StartTime: "10:00", EndTime: "18:00:00"},
		{DayOfWeek: 1, StartTime: "18:00", EndTime: "10:00", IsAvailable: true},
	}
	for _, row := range bad {
		assert.True(t, booking.IsValidation(f.svc.SetSchedule(ctx, admin, row)), "%+v", row)
	}

	// A closed day may carry any well-formed hours.
	f.cache.On("InvalidateAll").Return(nil).Once()
	assert.NoError(t, f.svc.SetSchedule(ctx, admin, &model.WeeklySchedule{DayOfWeek: 0, StartTime: "00:00", EndTime: "00:00"}))
}

func TestBlockedDates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	f.cache.On("Invalidate", "2026-03-09").Return(nil).Twice()
	require.NoError(t, f.svc.BlockDate(ctx, admin, day, " holiday "))

	list, err := f.svc.ListBlockedDates(ctx, admin, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "holiday", list[0].Reason)

	require.NoError(t, f.svc.UnblockDate(ctx, admin, day))
	assert.ErrorIs(t, f.svc.UnblockDate(ctx, admin, day), ErrNotFound)
	f.cache.AssertExpectations(t)
}

func TestServices(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	svc := &model.Service{Name: " Facial ", DurationMinutes: 45, IsActive: true}
	require.NoError(t, f.svc.CreateService(ctx, admin, svc))
	assert.Equal(t, "Facial", svc.Name)

	svc.DurationMinutes = 0
	assert.True(t, booking.IsValidation(f.svc.UpdateService(ctx, admin, svc)))

	svc.DurationMinutes = 50
	svc.IsActive = false
	require.NoError(t, f.svc.UpdateService(ctx, admin, svc))

	all, err := f.svc.ListServices(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	missing := &model.Service{ID: 404, Name: "x", DurationMinutes: 30}
	assert.ErrorIs(t, f.svc.UpdateService(ctx, admin, missing), ErrNotFound)
}

func TestExport(t *testing.T) {
	f := setup(t)
	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(context.Background(), admin, &buf))
	assert.Equal(t, "xlsx", buf.String())
}
