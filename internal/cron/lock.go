package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 2 * time.Minute

// Lock keeps a cron cycle to a single replica.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// acquireScript takes a free key or renews one we already hold.
var acquireScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
if current then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// releaseScript deletes the key only while it still holds our owner token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock is a lease on one key. The value names the holder as
// host/pid/nonce so a stuck lease can be traced to its replica. The TTL must
// cover the longest cycle.
type RedisLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	owner := fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()[:8])
	return &RedisLock{client: client, key: key, ttl: ttl, owner: owner}, nil
}

// Owner is the value this instance writes into the lock key.
func (l *RedisLock) Owner() string { return l.owner }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	got, err := acquireScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return got == 1, nil
}

// Release is a no-op when another owner holds the key or it already expired.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
