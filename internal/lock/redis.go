package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "edenthought:subscription_lock"
	defaultExpiry = 30 * time.Second
	defaultTries  = 64
)

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	Prefix string
	Expiry time.Duration
	Tries  int
}

// Redis is a Locker shared by every process connected to the same Redis.
type Redis struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

// NewRedis builds a redsync-backed Locker on top of client.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Expiry <= 0 {
		opts.Expiry = defaultExpiry
	}
	if opts.Tries <= 0 {
		opts.Tries = defaultTries
	}
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// Lock acquires the distributed mutex for key, retrying until the configured
// number of tries is exhausted or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex(
		r.opts.Prefix+":"+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Unlock with a fresh context so a cancelled request still frees the key.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			log.Printf("[lock] failed to release %s: %v", key, err)
		}
	}, nil
}
