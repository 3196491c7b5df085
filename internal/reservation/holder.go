package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another client currently holds the slot.
var ErrHeld = errors.New("slot is held by another request")

// Holder takes short-lived exclusive holds on a (date, time) slot.
type Holder interface {
	Hold(ctx context.Context, date, clock string) (token string, err error)
	Release(ctx context.Context, date, clock, token string) error
}

// RedisHolder implements Holder with SET NX PX.
type RedisHolder struct {
	rdb *redis.Client
	ttl time.Duration
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisHolder(rdb *redis.Client, ttl time.Duration) *RedisHolder {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisHolder{rdb: rdb, ttl: ttl}
}

func (h *RedisHolder) Hold(ctx context.Context, date, clock string) (string, error) {
	token := uuid.NewString()
	ok, err := h.rdb.SetNX(ctx, holdKey(date, clock), token, h.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("hold %s %s: %w", date, clock, err)
	}
	if !ok {
		return "", ErrHeld
	}
	return token, nil
}

func (h *RedisHolder) Release(ctx context.Context, date, clock, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, h.rdb, []string{holdKey(date, clock)}, token).Err(); err != nil {
		return fmt.Errorf("release %s %s: %w", date, clock, err)
	}
	return nil
}

// NoopHolder is used when Redis is not configured; the store's unique index is the only guard.
type NoopHolder struct{}

func (NoopHolder) Hold(context.Context, string, string) (string, error) { return "", nil }

func (NoopHolder) Release(context.Context, string, string, string) error { return nil }

func holdKey(date, clock string) string {
	return "hold:" + date + ":" + clock
}
