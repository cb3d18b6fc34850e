package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestAllow_FixedWindow(t *testing.T) {
	mr, rdb := newRedis(t)
	l := New(rdb, "test", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, mr.TTL("test:ip:1.2.3.4"))

	// other keys are independent
	res, err = l.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	mr.FastForward(time.Minute + time.Second)
	res, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestAllow_WindowNotExtendedByHits(t *testing.T) {
	mr, rdb := newRedis(t)
	l := New(rdb, "", 10, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, mr.TTL("ratelimit:k"))
	assert.Equal(t, 20*time.Second, res.ResetIn)
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	l := New(rdb, "test", 1, time.Minute)
	mr.Close()

	res, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, res.Allowed)
}

func TestReset(t *testing.T) {
	mr, rdb := newRedis(t)
	l := New(rdb, "test", 1, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}
