package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func setupCouponsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Coupon{}))
	return db
}

func newTestService(t *testing.T) (*Service, Repository) {
	t.Helper()
	repo := NewRepository(setupCouponsTestDB(t))
	svc := NewService(repo)
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptrTime(t time.Time) *time.Time { return &t }

func ptrMoney(v string) *decimal.Decimal {
	d := money(v)
	return &d
}

func TestEvaluateDiscounts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	restaurant := uuid.New()

	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "tenoff", Type: enums.CouponTypePercentage, Value: money("10"), Active: true}))
	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "HALF", Type: enums.CouponTypePercentage, Value: money("50"), MaxDiscount: ptrMoney("8.00"), Active: true}))
	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "FIVE", Type: enums.CouponTypeFixed, Value: money("5.00"), Active: true}))

	tests := []struct {
		name     string
		code     string
		subtotal string
		want     string
	}{
		{name: "percentage rounds to cents", code: " TenOff ", subtotal: "23.45", want: "2.35"},
		{name: "percentage capped by max discount", code: "HALF", subtotal: "40.00", want: "8.00"},
		{name: "fixed amount", code: "FIVE", subtotal: "12.00", want: "5.00"},
		{name: "fixed amount capped at subtotal", code: "five", subtotal: "3.20", want: "3.20"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eval, err := svc.Evaluate(ctx, tc.code, restaurant, money(tc.subtotal), enums.CurrencyUSD)
			require.NoError(t, err)
			assert.True(t, eval.Eligible)
			assert.Empty(t, eval.Reason)
			assert.NotEqual(t, uuid.Nil, eval.CouponID)
			assert.Equal(t, NormalizeCode(tc.code), eval.Code)
			assert.True(t, money(tc.want).Equal(eval.Discount), "got %s", eval.Discount)
		})
	}
}

func TestEvaluateIneligibleCoupons(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	restaurant := uuid.New()
	other := uuid.New()

	seed := []models.Coupon{
		{Code: "OFF", Type: enums.CouponTypeFixed, Value: money("2.00"), Active: false},
		{Code: "SOON", Type: enums.CouponTypeFixed, Value: money("2.00"), Active: true, StartsAt: ptrTime(testNow.Add(time.Hour))},
		{Code: "OLD", Type: enums.CouponTypeFixed, Value: money("2.00"), Active: true, ExpiresAt: ptrTime(testNow)},
		{Code: "ELSEWHERE", Type: enums.CouponTypeFixed, Value: money("2.00"), Active: true, RestaurantID: &other},
		{Code: "BIGORDER", Type: enums.CouponTypeFixed, Value: money("2.00"), Active: true, MinSubtotal: money("30.00")},
	}
	for i := range seed {
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	tests := map[string]string{
		"OFF":       ReasonInactive,
		"SOON":      ReasonNotStarted,
		"OLD":       ReasonExpired,
		"ELSEWHERE": ReasonWrongRestaurant,
		"BIGORDER":  ReasonBelowMinimum,
	}
	for code, reason := range tests {
		t.Run(code, func(t *testing.T) {
			eval, err := svc.Evaluate(ctx, code, restaurant, money("20.00"), enums.CurrencyUSD)
			require.NoError(t, err)
			assert.False(t, eval.Eligible)
			assert.Equal(t, reason, eval.Reason)
			assert.True(t, eval.Discount.IsZero())
		})
	}
}

func TestEvaluateRestaurantScopedCoupon(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	restaurant := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Coupon{
		Code:         "LOCAL",
		Type:         enums.CouponTypeFixed,
		Value:        money("4.00"),
		Active:       true,
		RestaurantID: &restaurant,
		ExpiresAt:    ptrTime(testNow.Add(time.Minute)),
	}))

	eval, err := svc.Evaluate(ctx, "LOCAL", restaurant, money("10.00"), enums.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, eval.Eligible)
	assert.True(t, money("4.00").Equal(eval.Discount))
}

func TestEvaluatePercentageRoundsToCurrencyMinorUnit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	restaurant := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "TENOFF", Type: enums.CouponTypePercentage, Value: money("10"), Active: true}))

	vnd, err := svc.Evaluate(ctx, "TENOFF", restaurant, money("123455"), enums.CurrencyVND)
	require.NoError(t, err)
	assert.True(t, money("12346").Equal(vnd.Discount), "got %s", vnd.Discount)

	usd, err := svc.Evaluate(ctx, "TENOFF", restaurant, money("123.45"), enums.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, money("12.35").Equal(usd.Discount), "got %s", usd.Discount)
}

func TestEvaluateUnknownAndBlankCodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, "NOPE", uuid.New(), money("10.00"), enums.CurrencyUSD)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = svc.Evaluate(ctx, "   ", uuid.New(), money("10.00"), enums.CurrencyUSD)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreateRejectsDuplicateCodes(t *testing.T) {
	_, repo := newTestService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "DUP", Type: enums.CouponTypeFixed, Value: money("1.00"), Active: true}))
	require.Error(t, repo.Create(ctx, &models.Coupon{Code: "dup", Type: enums.CouponTypeFixed, Value: money("1.00"), Active: true}))
}
