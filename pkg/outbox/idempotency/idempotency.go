// Package idempotency claims externally issued event ids in Redis so a
// redelivered callback is applied at most once per consumer.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

const scopePrefix = "evt:processed:"

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// Manager stores one key per (consumer, event id) holding the claim time.
// Keys look like tc:idempotency:evt:processed:<consumer>:<event id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a manager whose claims expire after ttl. Zero keeps them
// until released.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports true when this call took ownership of the event and false
// when an earlier delivery already holds it.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339Nano), m.ttl)
}

// Release drops a claim so the next delivery is applied again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// ClaimedAt returns when the event was claimed, or ok=false if it is not.
func (m *Manager) ClaimedAt(ctx context.Context, consumer, eventID string) (at time.Time, ok bool, err error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return time.Time{}, false, err
	}
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, true, nil
	}
	return at, true, nil
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey(scopePrefix+consumer, eventID), nil
}
