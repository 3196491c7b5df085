package agenda

import (
	"context"
	"errors"
	"testing"
	"time"

	"atelier/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	bookings map[string][]model.Booking
	err      error
	asked    []string
}

func (f *fakeStore) GetNonCancelledBookingsForDate(_ context.Context, date time.Time) ([]model.Booking, error) {
	key := date.Format(model.DateLayout)
	f.asked = append(f.asked, key)
	return f.bookings[key], f.err
}

type fakeSender struct {
	texts []string
	err   error
}

func (f *fakeSender) SendText(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func newScheduler(store Store, sender Sender, now time.Time) *Scheduler {
	s := NewScheduler(store, sender, Config{Hour: 18, Minute: 0}, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestFormat(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	text := Format(date, []model.Booking{
		{BookingTime: "09:00", ServiceName: "Massage", DurationMinutes: 60, ClientName: "Ada",
			Status: model.StatusConfirmed, PaymentStatus: model.PaymentPaid},
		{BookingTime: "11:30", ServiceID: 4, DurationMinutes: 30, ClientName: "Grace",
			Status: model.StatusPending, PaymentStatus: model.PaymentUnpaid},
	})

	assert.Equal(t, "Agenda for Tuesday 10 March 2026\n\n"+
		"09:00 Massage (1 h), Ada [confirmed, paid]\n"+
		"11:30 service #4 (30 min), Grace [pending, unpaid]", text)

	assert.Equal(t, "Agenda for Tuesday 10 March 2026\n\nNo bookings.", Format(date, nil))
}

func TestCheckAndRun_BeforeDueTime(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{}
	s := newScheduler(store, sender, time.Date(2026, 3, 9, 17, 59, 0, 0, time.UTC))

	assert.False(t, s.checkAndRun(context.Background()))
	assert.Empty(t, sender.texts)
}

func TestCheckAndRun_SendsTomorrowOnce(t *testing.T) {
	store := &fakeStore{bookings: map[string][]model.Booking{
		"2026-03-10": {{BookingTime: "10:00", ServiceName: "Massage", DurationMinutes: 60, ClientName: "Ada"}},
	}}
	sender := &fakeSender{}
	s := newScheduler(store, sender, time.Date(2026, 3, 9, 18, 5, 0, 0, time.UTC))

	assert.True(t, s.checkAndRun(context.Background()))
	assert.False(t, s.checkAndRun(context.Background()))

	require.Len(t, sender.texts, 1)
	assert.Equal(t, []string{"2026-03-10"}, store.asked)
	assert.Contains(t, sender.texts[0], "10:00 Massage")
}

func TestCheckAndRun_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	store := &fakeStore{}
	sender := &fakeSender{}
	s := NewScheduler(store, sender, Config{Hour: 1, Minute: 0, Location: loc}, zerolog.Nop())
	// 22:30 UTC on the 9th is 01:30 on the 10th at UTC+3.
	s.now = func() time.Time { return time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC) }

	assert.True(t, s.checkAndRun(context.Background()))
	assert.Equal(t, []string{"2026-03-11"}, store.asked)
}

func TestCheckAndRun_RedisLockSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	first := &fakeSender{}
	second := &fakeSender{}
	a := newScheduler(&fakeStore{}, first, now)
	a.UseRedisLock(rdb)
	b := newScheduler(&fakeStore{}, second, now)
	b.UseRedisLock(rdb)

	assert.True(t, a.checkAndRun(context.Background()))
	assert.False(t, b.checkAndRun(context.Background()))
	assert.Len(t, first.texts, 1)
	assert.Empty(t, second.texts)
	assert.True(t, mr.Exists("agenda:2026-03-09"))
}

func TestCheckAndRun_RetriesAfterFailedSend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sender := &fakeSender{err: errors.New("telegram down")}
	s := newScheduler(&fakeStore{}, sender, time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC))
	s.UseRedisLock(rdb)

	assert.False(t, s.checkAndRun(context.Background()))
	assert.False(t, mr.Exists("agenda:2026-03-09"))

	sender.err = nil
	assert.True(t, s.checkAndRun(context.Background()))
	assert.Len(t, sender.texts, 2)
	assert.True(t, mr.Exists("agenda:2026-03-09"))

	assert.False(t, s.checkAndRun(context.Background()))
	assert.Len(t, sender.texts, 2)
}

func TestRunFor_Errors(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	s := newScheduler(&fakeStore{err: errors.New("db closed")}, &fakeSender{}, date)
	assert.ErrorContains(t, s.RunFor(context.Background(), date), "load bookings")

	s = newScheduler(&fakeStore{}, &fakeSender{err: errors.New("telegram down")}, date)
	assert.ErrorContains(t, s.RunFor(context.Background(), date), "send agenda")
}

func TestParseTime(t *testing.T) {
	h, m, err := ParseTime("18:30")
	require.NoError(t, err)
	assert.Equal(t, 18, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseTime("6pm")
	assert.Error(t, err)
}
