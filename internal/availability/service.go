package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atelier/internal/metrics"
	"atelier/internal/model"
	"atelier/internal/slots"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnknownService is returned when a service cannot be resolved and the policy is reject.
var ErrUnknownService = errors.New("unknown or inactive service")

// Store is the read side of the booking store consumed by the engine.
type Store interface {
	GetWeeklyScheduleForWeekday(ctx context.Context, weekday time.Weekday) (*model.WeeklySchedule, error)
	IsDateBlocked(ctx context.Context, date time.Time) (bool, error)
	GetNonCancelledBookingsForDate(ctx context.Context, date time.Time) ([]model.Booking, error)
	GetServiceDuration(ctx context.Context, serviceID int64) (int, bool, error)
}

// Options tune duration resolution and occupancy.
type Options struct {
	// RejectUnknownService turns an unresolvable service into ErrUnknownService
	// instead of falling back to DefaultDurationMinutes.
	RejectUnknownService   bool
	DefaultDurationMinutes int
	Mode                   slots.OccupancyMode
}

// Service loads engine inputs from the store and runs the engine.
// Store failures are returned as errors, never as an open day.
type Service struct {
	store    Store
	opts     Options
	redis    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

func NewService(store Store, opts Options, logger *zerolog.Logger) *Service {
	if opts.DefaultDurationMinutes <= 0 {
		opts.DefaultDurationMinutes = slots.DefaultDurationMinutes
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "availability").Logger()
	}
	return &Service{store: store, opts: opts, logger: l}
}

// UseRedisCache enables caching of computed slot lists.
func (s *Service) UseRedisCache(client *redis.Client, ttl time.Duration) {
	s.redis = client
	s.cacheTTL = ttl
}

// Mode returns the configured occupancy mode.
func (s *Service) Mode() slots.OccupancyMode {
	return s.opts.Mode
}

// ResolveDuration returns the service duration in minutes.
// A nil serviceID means the default duration.
func (s *Service) ResolveDuration(ctx context.Context, serviceID *int64) (int, error) {
	if serviceID == nil {
		return s.opts.DefaultDurationMinutes, nil
	}

	minutes, found, err := s.store.GetServiceDuration(ctx, *serviceID)
	if err != nil {
		return 0, fmt.Errorf("get service duration: %w", err)
	}
	if !found {
		if s.opts.RejectUnknownService {
			return 0, fmt.Errorf("%w: %d", ErrUnknownService, *serviceID)
		}
		s.logger.Debug().Int64("service_id", *serviceID).Msg("unknown service, using default duration")
		return s.opts.DefaultDurationMinutes, nil
	}
	return minutes, nil
}

// Slots returns the candidate slots for date and service.
func (s *Service) Slots(ctx context.Context, date time.Time, serviceID *int64) ([]slots.Slot, error) {
	duration, err := s.ResolveDuration(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return s.SlotsForDuration(ctx, date, duration)
}

// SlotsForDuration returns the candidate slots for a resolved duration.
func (s *Service) SlotsForDuration(ctx context.Context, date time.Time, duration int) ([]slots.Slot, error) {
	key := cacheKey(date, duration)
	if cached, ok := s.readCache(ctx, key); ok {
		return cached, nil
	}

	started := time.Now()
	result, err := s.compute(ctx, date, duration)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSlotCompute(time.Since(started).Seconds())

	s.writeCache(ctx, key, result)
	return result, nil
}

func (s *Service) compute(ctx context.Context, date time.Time, duration int) ([]slots.Slot, error) {
	blocked, err := s.store.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check blocked date: %w", err)
	}
	if blocked {
		return []slots.Slot{}, nil
	}

	row, err := s.store.GetWeeklyScheduleForWeekday(ctx, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("get weekly schedule: %w", err)
	}
	if row == nil || !row.IsAvailable {
		return []slots.Slot{}, nil
	}

	bookings, err := s.store.GetNonCancelledBookingsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get bookings: %w", err)
	}

	in := slots.Input{
		DurationMinutes: duration,
		Schedule: &slots.Schedule{
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			IsAvailable: row.IsAvailable,
		},
		Bookings: make([]slots.Booking, 0, len(bookings)),
		Mode:     s.opts.Mode,
	}
	for _, b := range bookings {
		in.Bookings = append(in.Bookings, slots.Booking{Time: b.BookingTime, DurationMinutes: b.DurationMinutes})
	}

	result, err := slots.Generate(in)
	if err != nil {
		return nil, fmt.Errorf("generate slots for %s: %w", date.Format(model.DateLayout), err)
	}
	return result, nil
}

// Invalidate drops cached slot lists for date.
func (s *Service) Invalidate(ctx context.Context, date time.Time) error {
	return s.deleteMatching(ctx, "slots:"+date.Format(model.DateLayout)+":*")
}

// InvalidateAll drops every cached slot list. Used after schedule changes.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.deleteMatching(ctx, "slots:*")
}

func (s *Service) deleteMatching(ctx context.Context, pattern string) error {
	if !s.cacheEnabled() {
		return nil
	}

	iter := s.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redis.Del(ctx, keys...).Err()
}

func (s *Service) cacheEnabled() bool {
	return s.redis != nil && s.cacheTTL > 0
}

func (s *Service) readCache(ctx context.Context, key string) ([]slots.Slot, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}

	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.IncSlotCache("miss")
		} else {
			metrics.IncSlotCache("error")
			s.logger.Warn().Err(err).Str("key", key).Msg("slot cache read failed")
		}
		return nil, false
	}

	var out []slots.Slot
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		metrics.IncSlotCache("error")
		return nil, false
	}
	metrics.IncSlotCache("hit")
	return out, true
}

func (s *Service) writeCache(ctx context.Context, key string, val []slots.Slot) {
	if !s.cacheEnabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("slot cache write failed")
	}
}

func cacheKey(date time.Time, duration int) string {
	return fmt.Sprintf("slots:%s:%d", date.Format(model.DateLayout), duration)
}
