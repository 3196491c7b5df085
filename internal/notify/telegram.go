package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"atelier/internal/events"
	"atelier/internal/metrics"
	"atelier/internal/model"
	"atelier/internal/slots"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// BotAPI is the subset of the Telegram client used for notifications.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config tunes delivery.
type Config struct {
	AdminChats []int64
	// RatePerSecond caps outgoing messages; Telegram allows about 30/s per bot.
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	Timeout       time.Duration
}

// TelegramNotifier posts booking events to admin chats.
type TelegramNotifier struct {
	api     BotAPI
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, cfg Config, logger zerolog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return NewTelegramNotifierWithAPI(api, cfg, logger), nil
}

// NewTelegramNotifierWithAPI wraps an existing client.
func NewTelegramNotifierWithAPI(api BotAPI, cfg Config, logger zerolog.Logger) *TelegramNotifier {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TelegramNotifier{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier for booking events on bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.HandleEvent, events.BookingCreated, events.BookingStatusChanged)
}

// HandleEvent sends one message per admin chat.
func (n *TelegramNotifier) HandleEvent(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	text := FormatEvent(e)
	var errs []error
	for _, chatID := range n.cfg.AdminChats {
		if err := n.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
			metrics.IncIntegrationError("telegram")
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("event", string(e.Type)).Msg("notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendText delivers a plain message to every admin chat.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.cfg.AdminChats {
		if err := n.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
			metrics.IncIntegrationError("telegram")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendDocument delivers a file to every admin chat.
func (n *TelegramNotifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	var errs []error
	for _, chatID := range n.cfg.AdminChats {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: content})
		doc.Caption = caption
		if err := n.send(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		_, err := n.api.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) {
			continue
		}
		switch {
		case tgErr.Code == 429:
			wait := time.Duration(tgErr.RetryAfter) * time.Second
			if wait <= 0 {
				wait = time.Second
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		case tgErr.Code >= 400 && tgErr.Code < 500:
			// Bad request or bot blocked; retrying will not help.
			return err
		}
	}
	return lastErr
}

// FormatEvent renders a booking event as a plain-text admin message.
func FormatEvent(e events.Event) string {
	b := e.Booking
	var sb strings.Builder

	switch e.Type {
	case events.BookingCreated:
		sb.WriteString("New booking\n\n")
	case events.BookingStatusChanged:
		fmt.Fprintf(&sb, "Booking %s: %s -> %s\n\n", shortRef(b.Reference), e.PreviousStatus, b.Status)
	default:
		fmt.Fprintf(&sb, "%s\n\n", e.Type)
	}

	service := b.ServiceName
	if service == "" {
		service = fmt.Sprintf("service #%d", b.ServiceID)
	}
	fmt.Fprintf(&sb, "%s (%s)\n", service, slots.FormatDuration(b.DurationMinutes))
	fmt.Fprintf(&sb, "%s at %s\n", b.BookingDate, b.BookingTime)
	fmt.Fprintf(&sb, "Client: %s\n", b.ClientName)
	if b.ClientPhone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", b.ClientPhone)
	}
	if b.ClientEmail != "" {
		fmt.Fprintf(&sb, "Email: %s\n", b.ClientEmail)
	}
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Notes)
	}
	if b.Status != model.StatusCancelled {
		fmt.Fprintf(&sb, "Payment: %s\n", b.PaymentStatus)
	}
	fmt.Fprintf(&sb, "Ref: %s", b.Reference)
	return sb.String()
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
