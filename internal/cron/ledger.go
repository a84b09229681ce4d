package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLedger records when each job last started, shared by every replica
// that competes for the same lock.
type RunLedger interface {
	LastRun(ctx context.Context, job string) (time.Time, bool, error)
	MarkRun(ctx context.Context, job string, at time.Time) error
}

// memoryLedger is the single-process fallback.
type memoryLedger struct {
	mu   sync.Mutex
	runs map[string]time.Time
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{runs: make(map[string]time.Time)}
}

func (m *memoryLedger) LastRun(_ context.Context, job string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.runs[job]
	return at, ok, nil
}

func (m *memoryLedger) MarkRun(_ context.Context, job string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[job] = at
	return nil
}

// RedisLedger keeps job start times as unix millis in one hash.
type RedisLedger struct {
	client redis.Cmdable
	key    string
}

func NewRedisLedger(client redis.Cmdable, key string) (*RedisLedger, error) {
	if client == nil {
		return nil, errors.New("redis client required for run ledger")
	}
	if key == "" {
		return nil, errors.New("run ledger key is required")
	}
	return &RedisLedger{client: client, key: key}, nil
}

func (l *RedisLedger) LastRun(ctx context.Context, job string) (time.Time, bool, error) {
	raw, err := l.client.HGet(ctx, l.key, job).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last run of %s: %w", job, err)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last run of %s: %w", job, err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (l *RedisLedger) MarkRun(ctx context.Context, job string, at time.Time) error {
	if err := l.client.HSet(ctx, l.key, job, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("record run of %s: %w", job, err)
	}
	return nil
}
