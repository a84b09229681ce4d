package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
)

// TeamCartConvertedEvent announces the order created from a settled team cart.
// Amounts are fixed-precision strings in the cart currency.
type TeamCartConvertedEvent struct {
	TeamCartID           uuid.UUID      `json:"team_cart_id"`
	OrderID              uuid.UUID      `json:"order_id"`
	RestaurantID         uuid.UUID      `json:"restaurant_id"`
	HostUserID           uuid.UUID      `json:"host_user_id"`
	Currency             enums.Currency `json:"currency"`
	Total                string         `json:"total"`
	CashOnDeliveryAmount string         `json:"cash_on_delivery_amount"`
	MemberIDs            []uuid.UUID    `json:"member_ids"`
	CartVersion          int64          `json:"cart_version"`
}

// TeamCartOrderVoidedEvent withdraws an order whose conversion announcement
// was already relayed but whose cart never committed it.
type TeamCartOrderVoidedEvent struct {
	TeamCartID  uuid.UUID `json:"team_cart_id"`
	OrderID     uuid.UUID `json:"order_id"`
	CartVersion int64     `json:"cart_version"`
}
