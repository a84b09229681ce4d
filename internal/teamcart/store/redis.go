package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	tcredis "github.com/angelmondragon/teamcart-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldVersion = "v"
	fieldExpiry  = "exp"
	fieldStatus  = "st"
	fieldDoc     = "doc"

	defaultAuditRetention = 72 * time.Hour
)

// KEYS: cart hash, expiry index.
// ARGV: doc, exp ms, status, terminal flag, key expire-at ms, cart id.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'v', '0', 'exp', ARGV[2], 'st', ARGV[3], 'doc', ARGV[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
if ARGV[4] == '0' then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[6])
else
  redis.call('ZREM', KEYS[2], ARGV[6])
end
return 1
`)

// KEYS: cart hash, expiry index.
// ARGV: expected version, next version, doc, exp ms, status, terminal flag,
// key expire-at ms, cart id.
var casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'v')
if not current then
  return -1
end
if tonumber(current) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[2], 'exp', ARGV[4], 'st', ARGV[5], 'doc', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[7])
if ARGV[6] == '0' then
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[8])
else
  redis.call('ZREM', KEYS[2], ARGV[8])
end
return 1
`)

// KEYS: cart hash, expiry index.
// ARGV: new exp ms, key expire-at ms, cart id.
var touchScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'st')
if not st then
  return -1
end
if st ~= 'open' then
  return 0
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if tonumber(ARGV[1]) <= exp then
  return 0
end
redis.call('HSET', KEYS[1], 'exp', ARGV[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// RedisStore keeps each cart as a hash holding its version, expiry, status
// and JSON document, plus a sorted set of live carts scored by expiry.
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
}

var _ teamcart.Store = (*RedisStore)(nil)

// NewRedisStore builds the store. retention is how long a terminal cart stays
// readable before Redis evicts it.
func NewRedisStore(client redis.Cmdable, retention time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if retention <= 0 {
		retention = defaultAuditRetention
	}
	return &RedisStore{client: client, retention: retention}, nil
}

func (s *RedisStore) Create(ctx context.Context, cart *teamcart.TeamCart) error {
	if cart == nil || cart.ID == uuid.Nil {
		return errors.New("cart with id required")
	}
	doc, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode team cart: %w", err)
	}
	id := cart.ID.String()
	res, err := createScript.Run(ctx, s.client,
		[]string{tcredis.TeamCartKey(id), tcredis.TeamCartExpiryIndexKey()},
		doc, cart.ExpiresAt.UnixMilli(), cart.Status.String(), terminalFlag(cart), s.keyExpireAt(cart), id,
	).Int()
	if err != nil {
		return fmt.Errorf("create team cart: %w", err)
	}
	if res == 0 {
		return teamcart.ErrCartExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, cartID uuid.UUID) (*teamcart.TeamCart, int64, error) {
	id := cartID.String()
	values, err := s.client.HMGet(ctx, tcredis.TeamCartKey(id), fieldVersion, fieldExpiry, fieldDoc).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("read team cart: %w", err)
	}
	if len(values) != 3 || values[2] == nil {
		// The hash was evicted; drop any index entry that outlived it.
		if zerr := s.client.ZRem(ctx, tcredis.TeamCartExpiryIndexKey(), id).Err(); zerr != nil {
			return nil, 0, fmt.Errorf("prune expiry index: %w", zerr)
		}
		return nil, 0, teamcart.ErrCartNotFound
	}

	version, err := parseInt(values[0])
	if err != nil {
		return nil, 0, fmt.Errorf("parse version: %w", err)
	}
	expMillis, err := parseInt(values[1])
	if err != nil {
		return nil, 0, fmt.Errorf("parse expiry: %w", err)
	}
	raw, ok := values[2].(string)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected document type %T", values[2])
	}

	var cart teamcart.TeamCart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, 0, fmt.Errorf("decode team cart: %w", err)
	}
	cart.Version = version
	cart.ExpiresAt = time.UnixMilli(expMillis).UTC()
	return &cart, version, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, cartID uuid.UUID, expected int64, next *teamcart.TeamCart) error {
	if next == nil {
		return errors.New("next state required")
	}
	if next.Version != expected+1 {
		return fmt.Errorf("next version %d must follow expected %d", next.Version, expected)
	}
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode team cart: %w", err)
	}
	id := cartID.String()
	res, err := casScript.Run(ctx, s.client,
		[]string{tcredis.TeamCartKey(id), tcredis.TeamCartExpiryIndexKey()},
		expected, next.Version, doc, next.ExpiresAt.UnixMilli(), next.Status.String(), terminalFlag(next), s.keyExpireAt(next), id,
	).Int()
	if err != nil {
		return fmt.Errorf("compare and swap team cart: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return teamcart.ErrVersionConflict
	default:
		return teamcart.ErrCartNotFound
	}
}

// ListExpiringBefore returns live carts whose expiry is at or before cutoff.
// Equal scores come back in lexicographic id order.
func (s *RedisStore) ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := s.client.ZRangeByScore(ctx, tcredis.TeamCartExpiryIndexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expiring team carts: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("parse indexed cart id %q: %w", member, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Touch extends an open cart's expiry. Terminal or locked carts and expiries
// earlier than the stored one are left alone.
func (s *RedisStore) Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	id := cartID.String()
	res, err := touchScript.Run(ctx, s.client,
		[]string{tcredis.TeamCartKey(id), tcredis.TeamCartExpiryIndexKey()},
		expiresAt.UnixMilli(), expiresAt.Add(s.retention).UnixMilli(), id,
	).Int()
	if err != nil {
		return fmt.Errorf("touch team cart: %w", err)
	}
	if res < 0 {
		return teamcart.ErrCartNotFound
	}
	return nil
}

// keyExpireAt keeps live carts until expiry plus the audit window and
// terminal carts until termination plus the audit window.
func (s *RedisStore) keyExpireAt(cart *teamcart.TeamCart) int64 {
	base := cart.ExpiresAt
	if cart.Status.IsTerminal() {
		base = cart.UpdatedAt
		if cart.TerminatedAt != nil {
			base = *cart.TerminatedAt
		}
	}
	return base.Add(s.retention).UnixMilli()
}

func terminalFlag(cart *teamcart.TeamCart) string {
	if cart.Status.IsTerminal() {
		return "1"
	}
	return "0"
}

func parseInt(value any) (int64, error) {
	raw, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected value type %T", value)
	}
	return strconv.ParseInt(raw, 10, 64)
}
