package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *RedisHolder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisHolder(client, 30*time.Second)
}

func TestRedisHolder_Exclusive(t *testing.T) {
	ctx := context.Background()
	_, h := setup(t)

	token, err := h.Hold(ctx, "2026-03-09", "10:00")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = h.Hold(ctx, "2026-03-09", "10:00")
	assert.ErrorIs(t, err, ErrHeld)

	// Different slot is independent.
	_, err = h.Hold(ctx, "2026-03-09", "10:30")
	assert.NoError(t, err)

	require.NoError(t, h.Release(ctx, "2026-03-09", "10:00", token))
	_, err = h.Hold(ctx, "2026-03-09", "10:00")
	assert.NoError(t, err)
}

func TestRedisHolder_ReleaseWithForeignTokenKeepsHold(t *testing.T) {
	ctx := context.Background()
	mr, h := setup(t)

	token, err := h.Hold(ctx, "2026-03-09", "10:00")
	require.NoError(t, err)

	require.NoError(t, h.Release(ctx, "2026-03-09", "10:00", "someone-else"))
	got, err := mr.Get(holdKey("2026-03-09", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestRedisHolder_Expires(t *testing.T) {
	ctx := context.Background()
	mr, h := setup(t)

	_, err := h.Hold(ctx, "2026-03-09", "10:00")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)
	_, err = h.Hold(ctx, "2026-03-09", "10:00")
	assert.NoError(t, err)
}

func TestRedisHolder_RedisDown(t *testing.T) {
	mr, h := setup(t)
	mr.Close()

	_, err := h.Hold(context.Background(), "2026-03-09", "10:00")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHeld)
}

func TestNoopHolder(t *testing.T) {
	var h Holder = NoopHolder{}
	token, err := h.Hold(context.Background(), "2026-03-09", "10:00")
	assert.NoError(t, err)
	assert.Empty(t, token)
	assert.NoError(t, h.Release(context.Background(), "2026-03-09", "10:00", token))
}
