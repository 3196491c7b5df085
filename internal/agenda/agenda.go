package agenda

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"atelier/internal/model"
	"atelier/internal/slots"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store provides the bookings of one day.
type Store interface {
	GetNonCancelledBookingsForDate(ctx context.Context, date time.Time) ([]model.Booking, error)
}

// Sender delivers the digest text.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Config holds scheduling options.
type Config struct {
	// Hour and Minute of the daily run in Location.
	Hour     int
	Minute   int
	Location *time.Location
	// CheckInterval is how often the clock is checked.
	CheckInterval time.Duration
}

// Scheduler sends the next day's bookings to the admins once a day.
type Scheduler struct {
	store  Store
	sender Sender
	cfg    Config
	rdb    *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastRunDate string
}

func NewScheduler(store Store, sender Sender, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Scheduler{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger.With().Str("component", "agenda").Logger(),
		now:    time.Now,
	}
}

// UseRedisLock makes only one instance send the digest per day.
func (s *Scheduler) UseRedisLock(rdb *redis.Client) {
	s.rdb = rdb
}

// ParseTime splits "HH:MM" into hour and minute.
func ParseTime(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Str("time", fmt.Sprintf("%02d:%02d", s.cfg.Hour, s.cfg.Minute)).
		Str("location", s.cfg.Location.String()).
		Msg("agenda scheduler started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun sends the digest once the daily time has passed. A failed send
// is retried on the next check.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.now().In(s.cfg.Location)
	today := now.Format(model.DateLayout)

	s.mu.Lock()
	done := s.lastRunDate == today
	s.mu.Unlock()
	due := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	if done || now.Before(due) {
		return false
	}

	if !s.acquire(ctx, today) {
		s.markDone(today)
		s.logger.Debug().Str("date", today).Msg("agenda already sent by another instance")
		return false
	}

	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	if err := s.RunFor(ctx, tomorrow); err != nil {
		s.release(ctx, today)
		s.logger.Error().Err(err).Str("date", tomorrow.Format(model.DateLayout)).Msg("agenda failed")
		return false
	}
	s.markDone(today)
	return true
}

func (s *Scheduler) markDone(day string) {
	s.mu.Lock()
	s.lastRunDate = day
	s.mu.Unlock()
}

func lockKey(day string) string {
	return "agenda:" + day
}

func (s *Scheduler) acquire(ctx context.Context, day string) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, lockKey(day), "1", 36*time.Hour).Result()
	if err != nil {
		// Sending twice beats not sending.
		s.logger.Warn().Err(err).Msg("agenda lock unavailable")
		return true
	}
	return ok
}

// release lets any instance retry a day whose digest failed.
func (s *Scheduler) release(ctx context.Context, day string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, lockKey(day)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("agenda lock release failed")
	}
}

// RunFor sends the digest for date.
func (s *Scheduler) RunFor(ctx context.Context, date time.Time) error {
	bookings, err := s.store.GetNonCancelledBookingsForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	if err := s.sender.SendText(ctx, Format(date, bookings)); err != nil {
		return fmt.Errorf("send agenda: %w", err)
	}
	s.logger.Info().Str("date", date.Format(model.DateLayout)).Int("bookings", len(bookings)).Msg("agenda sent")
	return nil
}

// Format renders the digest for one day.
func Format(date time.Time, bookings []model.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Agenda for %s\n\n", date.Format("Monday 2 January 2006"))
	if len(bookings) == 0 {
		sb.WriteString("No bookings.")
		return sb.String()
	}
	for i, b := range bookings {
		service := b.ServiceName
		if service == "" {
			service = fmt.Sprintf("service #%d", b.ServiceID)
		}
		fmt.Fprintf(&sb, "%s %s (%s), %s [%s, %s]", b.BookingTime, service,
			slots.FormatDuration(b.DurationMinutes), b.ClientName, b.Status, b.PaymentStatus)
		if i < len(bookings)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
