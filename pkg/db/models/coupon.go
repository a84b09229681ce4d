package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// Coupon is a promotion code redeemable against a team cart subtotal.
// A nil RestaurantID makes the coupon valid at every restaurant.
type Coupon struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code         string           `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	RestaurantID *uuid.UUID       `gorm:"column:restaurant_id;type:uuid"`
	Type         enums.CouponType `gorm:"column:type;type:coupon_type;not null"`
	Value        decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	MaxDiscount  *decimal.Decimal `gorm:"column:max_discount;type:numeric(12,2)"`
	MinSubtotal  decimal.Decimal  `gorm:"column:min_subtotal;type:numeric(12,2);not null"`
	StartsAt     *time.Time       `gorm:"column:starts_at"`
	ExpiresAt    *time.Time       `gorm:"column:expires_at"`
	Active       bool             `gorm:"column:active;not null"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string { return "coupons" }
