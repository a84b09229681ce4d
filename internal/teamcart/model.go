package teamcart

import (
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnyVersion disables the expected-version check and lets the engine retry
// the read-modify-write loop on conflicts.
const AnyVersion int64 = -1

// TeamCart is the versioned aggregate persisted as a single document.
type TeamCart struct {
	ID           uuid.UUID            `json:"id"`
	RestaurantID uuid.UUID            `json:"restaurant_id"`
	HostUserID   uuid.UUID            `json:"host_user_id"`
	Status       enums.TeamCartStatus `json:"status"`
	ShareToken   string               `json:"share_token"`
	Deadline     *time.Time           `json:"deadline,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Version      int64                `json:"version"`
	QuoteVersion int64                `json:"quote_version"`

	Currency              enums.Currency  `json:"currency"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	TipAmount             decimal.Decimal `json:"tip_amount"`
	Total                 decimal.Decimal `json:"total"`
	CashOnDeliveryPortion decimal.Decimal `json:"cash_on_delivery_portion"`

	AppliedCouponID   *uuid.UUID `json:"applied_coupon_id,omitempty"`
	AppliedCouponCode string     `json:"applied_coupon_code,omitempty"`
	CouponNote        string     `json:"coupon_note,omitempty"`

	Members []Member `json:"members"`
	Items   []Item   `json:"items"`

	OrderID         *uuid.UUID `json:"order_id,omitempty"`
	ConversionError string     `json:"conversion_error,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// Member is keyed by UserID within its cart; slice order is join order.
type Member struct {
	UserID              uuid.UUID           `json:"user_id"`
	DisplayName         string              `json:"display_name"`
	Role                enums.MemberRole    `json:"role"`
	IsReady             bool                `json:"is_ready"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method,omitempty"`
	CommittedAmount     decimal.Decimal     `json:"committed_amount"`
	QuotedAmount        decimal.Decimal     `json:"quoted_amount"`
	OnlineTransactionID string              `json:"online_transaction_id,omitempty"`
	JoinedAt            time.Time           `json:"joined_at"`
}

type Item struct {
	ID             uuid.UUID       `json:"id"`
	AddedByUserID  uuid.UUID       `json:"added_by_user_id"`
	MenuItemID     uuid.UUID       `json:"menu_item_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	BasePrice      decimal.Decimal `json:"base_price"`
	Customizations []Customization `json:"customizations,omitempty"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type Customization struct {
	GroupID         uuid.UUID       `json:"group_id"`
	ChoiceID        uuid.UUID       `json:"choice_id"`
	GroupName       string          `json:"group_name"`
	ChoiceName      string          `json:"choice_name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// UnitPrice is the base price plus every customization adjustment.
func (i Item) UnitPrice() decimal.Decimal {
	unit := i.BasePrice
	for _, c := range i.Customizations {
		unit = unit.Add(c.PriceAdjustment)
	}
	return unit
}

func (i Item) computeLineTotal() decimal.Decimal {
	return i.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Member returns a pointer into the members slice, or nil.
func (c *TeamCart) Member(userID uuid.UUID) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

func (c *TeamCart) IsMember(userID uuid.UUID) bool {
	return c.Member(userID) != nil
}

func (c *TeamCart) IsHost(userID uuid.UUID) bool {
	return userID != uuid.Nil && c.HostUserID == userID
}

func (c *TeamCart) itemIndex(itemID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c *TeamCart) allReady() bool {
	if len(c.Members) == 0 {
		return false
	}
	for _, m := range c.Members {
		if !m.IsReady {
			return false
		}
	}
	return true
}

// AllSettled reports whether every member has paid online or committed to
// cash on delivery for their full quoted amount.
func (c *TeamCart) AllSettled() bool {
	if len(c.Members) == 0 {
		return false
	}
	for _, m := range c.Members {
		if !m.settled() {
			return false
		}
	}
	return true
}

func (m Member) settled() bool {
	if m.QuotedAmount.IsZero() {
		return true
	}
	switch m.PaymentStatus {
	case enums.PaymentStatusPaid:
		return true
	case enums.PaymentStatusCommitted:
		return m.PaymentMethod == enums.PaymentMethodCashOnDelivery &&
			m.CommittedAmount.GreaterThanOrEqual(m.QuotedAmount)
	default:
		return false
	}
}

func (c *TeamCart) anyPaid() bool {
	for _, m := range c.Members {
		if m.PaymentStatus == enums.PaymentStatusPaid {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a mutation attempt never aliases the loaded state.
func (c *TeamCart) Clone() *TeamCart {
	if c == nil {
		return nil
	}
	out := *c
	out.Deadline = cloneTime(c.Deadline)
	out.LockedAt = cloneTime(c.LockedAt)
	out.TerminatedAt = cloneTime(c.TerminatedAt)
	out.AppliedCouponID = cloneUUID(c.AppliedCouponID)
	out.OrderID = cloneUUID(c.OrderID)
	out.Members = append([]Member(nil), c.Members...)
	out.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		item.Customizations = append([]Customization(nil), item.Customizations...)
		out.Items[i] = item
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
