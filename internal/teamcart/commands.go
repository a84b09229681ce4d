package teamcart

import (
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxDisplayNameLength = 64
	maxItemQuantity      = 999
)

type CreateCommand struct {
	RestaurantID uuid.UUID
	HostUserID   uuid.UUID
	HostName     string
	// Currency falls back to the configured default when empty.
	Currency enums.Currency
	// Deadline pins ExpiresAt and disables the sliding TTL.
	Deadline *time.Time
}

type CreateResult struct {
	Cart       *TeamCart
	ShareToken string
}

type JoinCommand struct {
	ShareToken  string
	UserID      uuid.UUID
	DisplayName string
}

type AddItemCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	MenuItemID      uuid.UUID
	Name            string
	Quantity        int
	BasePrice       decimal.Decimal
	Customizations  []Customization
}

type RemoveItemCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	ItemID          uuid.UUID
}

type UpdateQuantityCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	ItemID          uuid.UUID
	Quantity        int
}

type SetMemberReadyCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	Ready           bool
}

type ApplyCouponCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	Code            string
}

type RemoveCouponCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
}

type SetTipCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	Amount          decimal.Decimal
}

type LockCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
}

// PaymentOutcome is a terminal or intermediate result reported for one member.
type PaymentOutcome struct {
	Status        enums.PaymentStatus
	Method        enums.PaymentMethod
	Amount        decimal.Decimal
	TransactionID string
}

type RecordPaymentCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
	Outcome         PaymentOutcome
}

// ConvertCommand retries conversion of a settled Locked cart. A nil UserID
// marks a system caller such as the sweeper.
type ConvertCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
}

type CancelCommand struct {
	CartID          uuid.UUID
	ExpectedVersion int64
	UserID          uuid.UUID
}
