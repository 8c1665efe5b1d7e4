// Package locks serializes reading mutations per device. Two concurrent
// creations for one device must not seed from the same previous reading,
// so every write path for a device runs under its lock.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockUnavailable = errors.New("device_lock_unavailable")

// DeviceLocker grants exclusive access to one device's reading chain.
// Release must be called exactly once.
type DeviceLocker interface {
	Acquire(ctx context.Context, deviceID snowflake.ID) (release func(), err error)
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is the process-local locker. Entries are reference counted
// so the map does not grow with the device fleet.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[snowflake.ID]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[snowflake.ID]*entry)}
}

func (k *KeyedMutex) Acquire(_ context.Context, deviceID snowflake.ID) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[deviceID]
	if !ok {
		e = &entry{}
		k.entries[deviceID] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, deviceID)
			}
			k.mu.Unlock()
		})
	}
	return release, nil
}

// RedisLocker layers a Redis lease over the local mutex so that multiple
// replicas serialize against each other as well.
type RedisLocker struct {
	local  *KeyedMutex
	client *redis.Client
	log    *zap.Logger

	ttl      time.Duration
	retry    time.Duration
	maxWait  time.Duration
	keyspace string
}

func NewRedisLocker(client *redis.Client, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		local:    NewKeyedMutex(),
		client:   client,
		log:      log.Named("locks.redis"),
		ttl:      30 * time.Second,
		retry:    50 * time.Millisecond,
		maxWait:  10 * time.Second,
		keyspace: "copiflow:device-lock:",
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisLocker) Acquire(ctx context.Context, deviceID snowflake.ID) (func(), error) {
	releaseLocal, err := r.local.Acquire(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	key := r.keyspace + deviceID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(r.maxWait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			releaseLocal()
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			releaseLocal()
			return nil, ErrLockUnavailable
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if _, err := releaseScript.Run(context.Background(), r.client, []string{key}, token).Result(); err != nil {
				r.log.Warn("failed to release device lock lease",
					zap.String("device_id", deviceID.String()),
					zap.Error(err),
				)
			}
			releaseLocal()
		})
	}
	return release, nil
}
