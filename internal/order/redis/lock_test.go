package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-pettag/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, 10*time.Second, logger.NewNop()), mr
}

func TestLockOrder_Exclusive(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockOrder(ctx, "order-1", "holder-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockOrder(ctx, "order-1", "holder-b")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	ok, err = r.LockOrder(ctx, "order-2", "holder-b")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per order")
}

func TestUnlockOrder_OnlyByHolder(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := r.LockOrder(ctx, "order-1", "holder-a")
	require.NoError(t, err)

	require.NoError(t, r.UnlockOrder(ctx, "order-1", "holder-b"))
	assert.True(t, mr.Exists(confirmLockPrefix+"order-1"), "foreign token must not release")

	require.NoError(t, r.UnlockOrder(ctx, "order-1", "holder-a"))
	assert.False(t, mr.Exists(confirmLockPrefix+"order-1"))
}

func TestLockOrder_ExpiresAfterTTL(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := r.LockOrder(ctx, "order-1", "holder-a")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, mr.TTL(confirmLockPrefix+"order-1"))

	mr.FastForward(11 * time.Second)

	ok, err := r.LockOrder(ctx, "order-1", "holder-b")
	require.NoError(t, err)
	assert.True(t, ok)

	// the stale holder releasing late must not drop the new lock
	require.NoError(t, r.UnlockOrder(ctx, "order-1", "holder-a"))
	held, err := mr.Get(confirmLockPrefix + "order-1")
	require.NoError(t, err)
	assert.Equal(t, "holder-b", held)
}

func TestLockOrder_ConcurrentCallersOneWinner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.LockOrder(ctx, "order-hot", string(rune('a'+i)))
			if err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestLockOrder_ServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	r := NewRedis(client, time.Second, logger.NewNop())

	_, err := r.LockOrder(context.Background(), "order-1", "holder-a")
	assert.Error(t, err)
}
