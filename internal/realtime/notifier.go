package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
	"github.com/google/uuid"
)

// Event kinds published on a cart's channel.
const (
	KindCartUpdated    = "cart_updated"
	KindLocked         = "locked"
	KindReadyToConfirm = "ready_to_confirm"
	KindPayment        = "payment"
	KindConverted      = "converted"
	KindExpired        = "expired"
	KindCancelled      = "cancelled"
)

// Event is the JSON payload subscribers receive. Clients refetch the view on
// cart_updated; the other kinds drive toasts and redirects.
type Event struct {
	Kind          string     `json:"kind"`
	TeamCartID    uuid.UUID  `json:"team_cart_id"`
	Version       int64      `json:"version,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	PaymentStatus string     `json:"payment_status,omitempty"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Notifier fans engine notifications out over Redis pub/sub, one channel per cart.
type Notifier struct {
	publisher redis.Publisher
	now       func() time.Time
}

var _ teamcart.Notifier = (*Notifier)(nil)

func NewNotifier(publisher redis.Publisher) (*Notifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	return &Notifier{publisher: publisher, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (n *Notifier) NotifyCartUpdated(ctx context.Context, cartID uuid.UUID, version int64) error {
	return n.publish(ctx, Event{Kind: KindCartUpdated, TeamCartID: cartID, Version: version})
}

func (n *Notifier) NotifyLocked(ctx context.Context, cartID uuid.UUID) error {
	return n.publish(ctx, Event{Kind: KindLocked, TeamCartID: cartID})
}

func (n *Notifier) NotifyReadyToConfirm(ctx context.Context, cartID uuid.UUID) error {
	return n.publish(ctx, Event{Kind: KindReadyToConfirm, TeamCartID: cartID})
}

func (n *Notifier) NotifyPaymentEvent(ctx context.Context, cartID, userID uuid.UUID, status enums.PaymentStatus) error {
	return n.publish(ctx, Event{Kind: KindPayment, TeamCartID: cartID, UserID: &userID, PaymentStatus: status.String()})
}

func (n *Notifier) NotifyConverted(ctx context.Context, cartID, orderID uuid.UUID) error {
	return n.publish(ctx, Event{Kind: KindConverted, TeamCartID: cartID, OrderID: &orderID})
}

func (n *Notifier) NotifyExpired(ctx context.Context, cartID uuid.UUID) error {
	return n.publish(ctx, Event{Kind: KindExpired, TeamCartID: cartID})
}

func (n *Notifier) NotifyCancelled(ctx context.Context, cartID uuid.UUID) error {
	return n.publish(ctx, Event{Kind: KindCancelled, TeamCartID: cartID})
}

func (n *Notifier) publish(ctx context.Context, event Event) error {
	event.OccurredAt = n.now()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Kind, err)
	}
	if err := n.publisher.Publish(ctx, redis.TeamCartEventsChannel(event.TeamCartID.String()), payload); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Kind, err)
	}
	return nil
}
