package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	tcredis "github.com/angelmondragon/teamcart-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)
	return store, mr
}

func sampleCart(expiresAt time.Time) *teamcart.TeamCart {
	host := uuid.New()
	return &teamcart.TeamCart{
		ID:           uuid.New(),
		RestaurantID: uuid.New(),
		HostUserID:   host,
		Status:       enums.TeamCartStatusOpen,
		ShareToken:   "token-value-123456",
		ExpiresAt:    expiresAt,
		Currency:     enums.CurrencyUSD,
		Subtotal:     decimal.RequireFromString("12.50"),
		Members: []teamcart.Member{{
			UserID:        host,
			DisplayName:   "Host",
			Role:          enums.MemberRoleHost,
			PaymentStatus: enums.PaymentStatusPending,
		}},
		Items:     []teamcart.Item{},
		CreatedAt: expiresAt.Add(-time.Hour),
		UpdatedAt: expiresAt.Add(-time.Hour),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	expires := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	cart := sampleCart(expires)

	require.NoError(t, store.Create(ctx, cart))
	require.ErrorIs(t, store.Create(ctx, cart), teamcart.ErrCartExists)

	got, version, err := store.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, cart.ID, got.ID)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.True(t, got.Subtotal.Equal(decimal.RequireFromString("12.50")))
	require.Len(t, got.Members, 1)
	assert.Equal(t, "Host", got.Members[0].DisplayName)

	_, _, err = store.Get(ctx, uuid.New())
	require.ErrorIs(t, err, teamcart.ErrCartNotFound)
}

func TestCompareAndSwap(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	cart := sampleCart(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, store.Create(ctx, cart))

	next := cart.Clone()
	next.Version = 1
	next.TipAmount = decimal.RequireFromString("2.00")
	require.NoError(t, store.CompareAndSwap(ctx, cart.ID, 0, next))

	stale := cart.Clone()
	stale.Version = 1
	require.ErrorIs(t, store.CompareAndSwap(ctx, cart.ID, 0, stale), teamcart.ErrVersionConflict)

	skipped := cart.Clone()
	skipped.Version = 5
	require.Error(t, store.CompareAndSwap(ctx, cart.ID, 1, skipped))

	got, version, err := store.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.True(t, got.TipAmount.Equal(decimal.RequireFromString("2.00")))

	missing := sampleCart(time.Now())
	missing.Version = 1
	require.ErrorIs(t, store.CompareAndSwap(ctx, missing.ID, 0, missing), teamcart.ErrCartNotFound)
}

func TestExpiryIndexTracksLiveCarts(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	early := sampleCart(base)
	late := sampleCart(base.Add(time.Hour))
	require.NoError(t, store.Create(ctx, early))
	require.NoError(t, store.Create(ctx, late))

	ids, err := store.ListExpiringBefore(ctx, base, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID}, ids)

	ids, err = store.ListExpiringBefore(ctx, base.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID}, ids)

	expired := early.Clone()
	expired.Version = 1
	expired.Status = enums.TeamCartStatusExpired
	terminated := base
	expired.TerminatedAt = &terminated
	require.NoError(t, store.CompareAndSwap(ctx, early.ID, 0, expired))

	ids, err = store.ListExpiringBefore(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID}, ids)

	// Terminal carts stay readable for the audit window.
	got, _, err := store.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TeamCartStatusExpired, got.Status)
	assert.True(t, mr.Exists(tcredis.TeamCartKey(early.ID.String())))
}

func TestExpiryIndexBreaksTiesByID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	expires := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	carts := map[uuid.UUID]*teamcart.TeamCart{}
	var ids []string
	for i := 0; i < 3; i++ {
		cart := sampleCart(expires)
		require.NoError(t, store.Create(ctx, cart))
		carts[cart.ID] = cart
		ids = append(ids, cart.ID.String())
	}
	sort.Strings(ids)

	first, err := store.ListExpiringBefore(ctx, expires, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].String())
	assert.Equal(t, ids[1], first[1].String())

	for _, id := range first {
		expired := carts[id].Clone()
		expired.Version = 1
		expired.Status = enums.TeamCartStatusExpired
		terminated := expires
		expired.TerminatedAt = &terminated
		require.NoError(t, store.CompareAndSwap(ctx, id, 0, expired))
	}

	rest, err := store.ListExpiringBefore(ctx, expires, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].String())
}

func TestGetPrunesIndexForEvictedCart(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	cart := sampleCart(base)
	require.NoError(t, store.Create(ctx, cart))

	mr.Del(tcredis.TeamCartKey(cart.ID.String()))
	_, _, err := store.Get(ctx, cart.ID)
	require.ErrorIs(t, err, teamcart.ErrCartNotFound)

	ids, err := store.ListExpiringBefore(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTouchOnlyExtendsOpenCarts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	cart := sampleCart(base)
	require.NoError(t, store.Create(ctx, cart))

	require.NoError(t, store.Touch(ctx, cart.ID, base.Add(-time.Minute)))
	got, version, err := store.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(base))

	later := base.Add(30 * time.Minute)
	require.NoError(t, store.Touch(ctx, cart.ID, later))
	got, after, err := store.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, version, after)
	assert.True(t, got.ExpiresAt.Equal(later))

	ids, err := store.ListExpiringBefore(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	locked := got.Clone()
	locked.Version = 1
	locked.Status = enums.TeamCartStatusLocked
	require.NoError(t, store.CompareAndSwap(ctx, cart.ID, 0, locked))
	require.NoError(t, store.Touch(ctx, cart.ID, later.Add(time.Hour)))
	got, _, err = store.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(later))

	require.ErrorIs(t, store.Touch(ctx, uuid.New(), later), teamcart.ErrCartNotFound)
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil, time.Hour)
	require.Error(t, err)
}
