package teamcart

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel results of Store operations.
var (
	ErrCartNotFound    = errors.New("team cart not found")
	ErrCartExists      = errors.New("team cart already exists")
	ErrVersionConflict = errors.New("team cart version conflict")
)

// Store is the optimistic-concurrency document store holding every cart.
type Store interface {
	// Create persists a new cart at version 0.
	Create(ctx context.Context, cart *TeamCart) error
	Get(ctx context.Context, cartID uuid.UUID) (*TeamCart, int64, error)
	// CompareAndSwap writes next only if the stored version equals expected.
	// next.Version must already be expected+1.
	CompareAndSwap(ctx context.Context, cartID uuid.UUID, expected int64, next *TeamCart) error
	// ListExpiringBefore returns live cart ids ordered by expiry then id.
	ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	// Touch moves ExpiresAt without changing the version.
	Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
}

// ShareTokens issues and resolves join-link credentials.
type ShareTokens interface {
	Issue(cartID uuid.UUID) (string, error)
	Resolve(token string) (uuid.UUID, error)
}

type CouponEvaluation struct {
	CouponID uuid.UUID
	Code     string
	Discount decimal.Decimal
	Eligible bool
	Reason   string
}

// CouponPricing evaluates a coupon code against a restaurant and subtotal.
// Discounts come back in whole minor units of currency.
type CouponPricing interface {
	Evaluate(ctx context.Context, code string, restaurantID uuid.UUID, subtotal decimal.Decimal, currency enums.Currency) (CouponEvaluation, error)
}

// OrderConverter turns a settled cart into a persisted order. Convert must be
// idempotent per cart id and snapshot version, returning the existing order on
// replays, and must never hand an order written for an older version to a
// newer one. Void withdraws an order whose cart write did not commit.
type OrderConverter interface {
	Convert(ctx context.Context, snapshot *TeamCart) (uuid.UUID, error)
	Void(ctx context.Context, cartID, orderID uuid.UUID) error
}

// Notifier pushes post-commit events to connected members.
type Notifier interface {
	NotifyCartUpdated(ctx context.Context, cartID uuid.UUID, version int64) error
	NotifyLocked(ctx context.Context, cartID uuid.UUID) error
	NotifyReadyToConfirm(ctx context.Context, cartID uuid.UUID) error
	NotifyPaymentEvent(ctx context.Context, cartID, userID uuid.UUID, status enums.PaymentStatus) error
	NotifyConverted(ctx context.Context, cartID, orderID uuid.UUID) error
	NotifyExpired(ctx context.Context, cartID uuid.UUID) error
	NotifyCancelled(ctx context.Context, cartID uuid.UUID) error
}

type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
