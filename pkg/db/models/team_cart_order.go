package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// TeamCartOrder is the single order produced when a team cart converts.
type TeamCartOrder struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TeamCartID           uuid.UUID              `gorm:"column:team_cart_id;type:uuid;not null;uniqueIndex:ux_team_cart_orders_team_cart"`
	RestaurantID         uuid.UUID              `gorm:"column:restaurant_id;type:uuid;not null"`
	HostUserID           uuid.UUID              `gorm:"column:host_user_id;type:uuid;not null"`
	Currency             enums.Currency         `gorm:"column:currency;type:char(3);not null"`
	Subtotal             decimal.Decimal        `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount       decimal.Decimal        `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	TaxAmount            decimal.Decimal        `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	DeliveryFee          decimal.Decimal        `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	TipAmount            decimal.Decimal        `gorm:"column:tip_amount;type:numeric(12,2);not null"`
	Total                decimal.Decimal        `gorm:"column:total;type:numeric(12,2);not null"`
	CashOnDeliveryAmount decimal.Decimal        `gorm:"column:cash_on_delivery_amount;type:numeric(12,2);not null"`
	CouponID             *uuid.UUID             `gorm:"column:coupon_id;type:uuid"`
	CouponCode           *string                `gorm:"column:coupon_code"`
	CartVersion          int64                  `gorm:"column:cart_version;not null"`
	Items                []TeamCartOrderItem    `gorm:"foreignKey:OrderID"`
	Payments             []TeamCartOrderPayment `gorm:"foreignKey:OrderID"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (TeamCartOrder) TableName() string { return "team_cart_orders" }

type TeamCartOrderItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	AddedByUserID  uuid.UUID       `gorm:"column:added_by_user_id;type:uuid;not null"`
	MenuItemID     uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	Name           string          `gorm:"column:name;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	BasePrice      decimal.Decimal `gorm:"column:base_price;type:numeric(12,2);not null"`
	LineTotal      decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	Customizations json.RawMessage `gorm:"column:customizations;type:jsonb;not null"`
}

func (TeamCartOrderItem) TableName() string { return "team_cart_order_items" }

// TeamCartOrderPayment records how one member settled their share.
type TeamCartOrderPayment struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	DisplayName     string               `gorm:"column:display_name;not null"`
	Method          *enums.PaymentMethod `gorm:"column:method;type:payment_method"`
	Status          enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null"`
	QuotedAmount    decimal.Decimal      `gorm:"column:quoted_amount;type:numeric(12,2);not null"`
	CommittedAmount decimal.Decimal      `gorm:"column:committed_amount;type:numeric(12,2);not null"`
	TransactionID   *string              `gorm:"column:transaction_id"`
}

func (TeamCartOrderPayment) TableName() string { return "team_cart_order_payments" }
