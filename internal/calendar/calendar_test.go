package calendar

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"atelier/internal/events"
	"atelier/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

type mockAPI struct {
	mock.Mock
	inserted *gcal.Event
}

func (m *mockAPI) Insert(_ context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	m.inserted = ev
	args := m.Called(calendarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gcal.Event), args.Error(1)
}

func (m *mockAPI) Delete(_ context.Context, calendarID, eventID string) error {
	return m.Called(calendarID, eventID).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SetCalendarEventID(_ context.Context, id int64, eventID string) error {
	return m.Called(id, eventID).Error(0)
}

func confirmed() model.Booking {
	return model.Booking{
		ID:              7,
		Reference:       "ref-7",
		ServiceName:     "Massage",
		BookingDate:     "2026-03-09",
		BookingTime:     "10:00",
		DurationMinutes: 90,
		Status:          model.StatusConfirmed,
		ClientName:      "Ada",
		ClientPhone:     "+100000000",
	}
}

func newSyncer(t *testing.T, api *mockAPI, store *mockStore) *Syncer {
	t.Helper()
	s, err := NewSyncer(api, store, "studio", "Europe/Berlin", zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestHandleEvent_ConfirmInsertsEvent(t *testing.T) {
	api, store := &mockAPI{}, &mockStore{}
	api.On("Insert", "studio").Return(&gcal.Event{Id: "evt-1"}, nil)
	store.On("SetCalendarEventID", int64(7), "evt-1").Return(nil)

	s := newSyncer(t, api, store)
	require.NoError(t, s.HandleEvent(events.Event{Type: events.BookingStatusChanged, Booking: confirmed()}))

	api.AssertExpectations(t)
	store.AssertExpectations(t)
	assert.Equal(t, "Massage: Ada", api.inserted.Summary)
	assert.Equal(t, "2026-03-09T10:00:00+01:00", api.inserted.Start.DateTime)
	assert.Equal(t, "2026-03-09T11:30:00+01:00", api.inserted.End.DateTime)
	assert.Equal(t, "ref-7", api.inserted.ExtendedProperties.Private["booking_reference"])
}

func TestHandleEvent_AlreadySynced(t *testing.T) {
	api, store := &mockAPI{}, &mockStore{}
	b := confirmed()
	b.CalendarEventID = "evt-1"

	require.NoError(t, newSyncer(t, api, store).HandleEvent(events.Event{Booking: b}))
	api.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestHandleEvent_CancelDeletesEvent(t *testing.T) {
	api, store := &mockAPI{}, &mockStore{}
	api.On("Delete", "studio", "evt-1").Return(&googleapi.Error{Code: http.StatusGone})
	store.On("SetCalendarEventID", int64(7), "").Return(nil)

	b := confirmed()
	b.Status = model.StatusCancelled
	b.CalendarEventID = "evt-1"

	require.NoError(t, newSyncer(t, api, store).HandleEvent(events.Event{Booking: b}))
	api.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestHandleEvent_DeleteFailureKeepsEventID(t *testing.T) {
	api, store := &mockAPI{}, &mockStore{}
	api.On("Delete", "studio", "evt-1").Return(errors.New("timeout"))

	b := confirmed()
	b.Status = model.StatusCancelled
	b.CalendarEventID = "evt-1"

	assert.Error(t, newSyncer(t, api, store).HandleEvent(events.Event{Booking: b}))
	store.AssertNotCalled(t, "SetCalendarEventID", mock.Anything, mock.Anything)
}

func TestHandleEvent_IgnoresOtherStatuses(t *testing.T) {
	api, store := &mockAPI{}, &mockStore{}
	b := confirmed()
	b.Status = model.StatusCompleted

	assert.NoError(t, newSyncer(t, api, store).HandleEvent(events.Event{Booking: b}))
	api.AssertNotCalled(t, "Insert", mock.Anything)
}

func TestNewSyncer_BadTimeZone(t *testing.T) {
	_, err := NewSyncer(&mockAPI{}, &mockStore{}, "", "Mars/Olympus", zerolog.Nop())
	assert.Error(t, err)
}
