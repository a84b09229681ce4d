package coupons

import (
	"context"
	"time"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ReasonInactive        = "coupon is inactive"
	ReasonNotStarted      = "coupon is not active yet"
	ReasonExpired         = "coupon has expired"
	ReasonWrongRestaurant = "coupon is not valid at this restaurant"
	ReasonBelowMinimum    = "subtotal below coupon minimum"
)

var hundred = decimal.NewFromInt(100)

// Service prices coupon codes for team carts.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Evaluate resolves code and computes its discount against subtotal. A code
// that does not exist is a NOT_FOUND error; a coupon that exists but does not
// apply comes back with Eligible false and a Reason.
func (s *Service) Evaluate(ctx context.Context, code string, restaurantID uuid.UUID, subtotal decimal.Decimal, currency enums.Currency) (teamcart.CouponEvaluation, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return teamcart.CouponEvaluation{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return teamcart.CouponEvaluation{}, err
	}

	eval := teamcart.CouponEvaluation{CouponID: coupon.ID, Code: coupon.Code}
	if reason := s.ineligibility(coupon, restaurantID, subtotal); reason != "" {
		eval.Reason = reason
		return eval, nil
	}
	eval.Eligible = true
	eval.Discount = discountFor(coupon, subtotal, currency)
	return eval, nil
}

func (s *Service) ineligibility(coupon *models.Coupon, restaurantID uuid.UUID, subtotal decimal.Decimal) string {
	now := s.now()
	switch {
	case !coupon.Active:
		return ReasonInactive
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return ReasonNotStarted
	case coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt):
		return ReasonExpired
	case coupon.RestaurantID != nil && *coupon.RestaurantID != restaurantID:
		return ReasonWrongRestaurant
	case subtotal.LessThan(coupon.MinSubtotal):
		return ReasonBelowMinimum
	}
	return ""
}

// discountFor never exceeds the subtotal or the coupon's MaxDiscount.
// Percentages round half up to the currency's minor unit.
func discountFor(coupon *models.Coupon, subtotal decimal.Decimal, currency enums.Currency) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.Type {
	case enums.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(hundred).Round(currency.Exponent())
	case enums.CouponTypeFixed:
		discount = coupon.Value
	}
	if coupon.MaxDiscount != nil && discount.GreaterThan(*coupon.MaxDiscount) {
		discount = *coupon.MaxDiscount
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount
}

var _ teamcart.CouponPricing = (*Service)(nil)
