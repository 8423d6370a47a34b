package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/and07/mindsync/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_MutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	locker := redis.NewLocker(client, "mindsync:board:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "board-1", 5*time.Second)
	require.NoError(t, err)

	// A second acquisition times out while the first holds the lock.
	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "board-1", 5*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)

	// Another board is independent.
	unlock2, err := locker.Lock(ctx, "board-2", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))

	// After release the same key can be taken again.
	require.NoError(t, unlock(ctx))
	unlock3, err := locker.Lock(ctx, "board-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock3(ctx))
}
