package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"atelier/internal/events"
	"atelier/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu     sync.Mutex
	sent   []tgbotapi.Chattable
	errors []error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if len(f.errors) > 0 {
		err := f.errors[0]
		f.errors = f.errors[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}

func sampleBooking() model.Booking {
	return model.Booking{
		Reference:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		ServiceName:     "Massage",
		DurationMinutes: 90,
		BookingDate:     "2026-03-09",
		BookingTime:     "10:00",
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentUnpaid,
		ClientName:      "Ada",
		ClientPhone:     "+100000000",
	}
}

func TestHandleEvent_SendsToEveryChat(t *testing.T) {
	bot := &fakeBot{}
	n := NewTelegramNotifierWithAPI(bot, Config{AdminChats: []int64{1, 2}}, zerolog.Nop())

	require.NoError(t, n.HandleEvent(events.Event{Type: events.BookingCreated, Booking: sampleBooking()}))
	require.Len(t, bot.sent, 2)

	msg, ok := bot.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(2), msg.ChatID)
	assert.Contains(t, msg.Text, "New booking")
	assert.Contains(t, msg.Text, "Massage (1 h 30 min)")
}

func TestHandleEvent_DoesNotRetryClientErrors(t *testing.T) {
	bot := &fakeBot{errors: []error{&tgbotapi.Error{Code: 403, Message: "bot was blocked"}}}
	n := NewTelegramNotifierWithAPI(bot, Config{AdminChats: []int64{1}, MaxRetries: 3}, zerolog.Nop())

	err := n.HandleEvent(events.Event{Type: events.BookingCreated, Booking: sampleBooking()})
	assert.Error(t, err)
	assert.Len(t, bot.sent, 1)
}

func TestHandleEvent_RetriesTransientErrors(t *testing.T) {
	bot := &fakeBot{errors: []error{errors.New("connection reset")}}
	n := NewTelegramNotifierWithAPI(bot, Config{AdminChats: []int64{1}, MaxRetries: 2}, zerolog.Nop())

	require.NoError(t, n.HandleEvent(events.Event{Type: events.BookingCreated, Booking: sampleBooking()}))
	assert.Len(t, bot.sent, 2)
}

func TestSendText(t *testing.T) {
	bot := &fakeBot{errors: []error{&tgbotapi.Error{Code: 400, Message: "chat not found"}}}
	n := NewTelegramNotifierWithAPI(bot, Config{AdminChats: []int64{1, 2}}, zerolog.Nop())

	err := n.SendText(context.Background(), "Agenda")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 1")
	require.Len(t, bot.sent, 2)

	msg, ok := bot.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "Agenda", msg.Text)
}

func TestSendDocument(t *testing.T) {
	bot := &fakeBot{}
	n := NewTelegramNotifierWithAPI(bot, Config{AdminChats: []int64{7}}, zerolog.Nop())

	require.NoError(t, n.SendDocument(context.Background(), "report.xlsx", strings.NewReader("data"), "Monthly"))
	require.Len(t, bot.sent, 1)

	doc, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Monthly", doc.Caption)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "report.xlsx", file.Name)
	assert.Equal(t, []byte("data"), file.Bytes)
}

func TestFormatEvent_StatusChange(t *testing.T) {
	b := sampleBooking()
	b.Status = model.StatusCancelled
	text := FormatEvent(events.Event{Type: events.BookingStatusChanged, Booking: b, PreviousStatus: model.StatusPending})

	assert.True(t, strings.HasPrefix(text, "Booking 0f8fad5b: pending -> cancelled"))
	assert.NotContains(t, text, "Payment:")
	assert.Contains(t, text, "Phone: +100000000")
}
