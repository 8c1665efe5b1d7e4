package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()
	deviceID := snowflake.ID(42)

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, deviceID)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
}

func TestKeyedMutex_IndependentDevices(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, snowflake.ID(1))
	require.NoError(t, err)
	defer releaseA()

	// A different device's lock is not held up by the first.
	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(ctx, snowflake.ID(2))
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent device lock blocked")
	}
}

func TestKeyedMutex_ReleaseIsIdempotent(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, snowflake.ID(7))
	require.NoError(t, err)
	release()
	release() // second call is a no-op, not a second unlock

	again, err := locker.Acquire(ctx, snowflake.ID(7))
	require.NoError(t, err)
	again()
}

func TestKeyedMutex_EntriesDoNotLeak(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	for i := int64(1); i <= 100; i++ {
		release, err := locker.Acquire(ctx, snowflake.ID(i))
		require.NoError(t, err)
		release()
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.entries)
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, zap.NewNop()), srv
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	locker, srv := newRedisLocker(t)
	ctx := context.Background()
	deviceID := snowflake.ID(99)

	release, err := locker.Acquire(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, srv.Exists("copiflow:device-lock:"+deviceID.String()))

	release()
	assert.False(t, srv.Exists("copiflow:device-lock:"+deviceID.String()))
}

func TestRedisLocker_WaitsForLease(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()
	deviceID := snowflake.ID(100)

	release, err := locker.Acquire(ctx, deviceID)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(ctx, deviceID)
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the lease is held")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestRedisLocker_ReleaseIgnoresForeignLease(t *testing.T) {
	locker, srv := newRedisLocker(t)
	ctx := context.Background()
	deviceID := snowflake.ID(101)

	release, err := locker.Acquire(ctx, deviceID)
	require.NoError(t, err)

	// Simulate lease expiry plus takeover by another replica.
	key := "copiflow:device-lock:" + deviceID.String()
	srv.Del(key)
	require.NoError(t, srv.Set(key, "someone-else"))

	release()

	// The foreign lease survives a stale release.
	got, err := srv.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
