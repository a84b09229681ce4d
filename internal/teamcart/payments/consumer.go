package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultConsumerName = "teamcart-payments"

// Event is a payment gateway callback for one member of a locked cart.
type Event struct {
	EventID       string              `json:"eventId" validate:"required,max=255"`
	TeamCartID    uuid.UUID           `json:"teamCartId" validate:"required"`
	UserID        uuid.UUID           `json:"userId" validate:"required"`
	Status        enums.PaymentStatus `json:"status" validate:"required"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        decimal.Decimal     `json:"amount"`
	TransactionID string              `json:"transactionId" validate:"max=255"`
}

type paymentRecorder interface {
	RecordMemberPayment(ctx context.Context, cmd teamcart.RecordPaymentCommand) (*teamcart.TeamCart, error)
}

type deduplicator interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Consumer applies gateway callbacks at most once per gateway event id.
type Consumer struct {
	engine paymentRecorder
	dedupe deduplicator
	logg   *logger.Logger
	name   string
}

func NewConsumer(engine paymentRecorder, dedupe deduplicator, logg *logger.Logger, name string) (*Consumer, error) {
	if engine == nil {
		return nil, fmt.Errorf("team cart engine required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultConsumerName
	}
	return &Consumer{engine: engine, dedupe: dedupe, logg: logg, name: name}, nil
}

// Handle records the payment. A redelivered event returns DUPLICATE_EVENT.
// Retryable failures release the claim so the gateway's next attempt runs again.
func (c *Consumer) Handle(ctx context.Context, evt Event) (*teamcart.TeamCart, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":     evt.EventID,
		"team_cart_id": evt.TeamCartID.String(),
		"user_id":      evt.UserID.String(),
	})

	claimed, err := c.dedupe.Claim(ctx, c.name, evt.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment event deduplication failed")
	}
	if !claimed {
		c.logg.Info(ctx, "teamcart.payment_event_duplicate")
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateEvent, "payment event already processed").
			WithDetails(map[string]any{"event_id": evt.EventID})
	}

	cart, err := c.engine.RecordMemberPayment(ctx, teamcart.RecordPaymentCommand{
		CartID:          evt.TeamCartID,
		ExpectedVersion: teamcart.AnyVersion,
		UserID:          evt.UserID,
		Outcome: teamcart.PaymentOutcome{
			Status:        evt.Status,
			Method:        evt.Method,
			Amount:        evt.Amount,
			TransactionID: evt.TransactionID,
		},
	})
	if err != nil {
		if pkgerrors.IsRetryable(err) || pkgerrors.IsCode(err, pkgerrors.CodeCanceled) {
			if delErr := c.dedupe.Release(context.WithoutCancel(ctx), c.name, evt.EventID); delErr != nil {
				c.logg.Error(ctx, "teamcart.payment_event_unmark_failed", delErr)
			}
		} else {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "teamcart.payment_event_rejected")
		}
		return nil, err
	}
	if cart.ConversionError != "" {
		c.logg.Warn(c.logg.WithField(ctx, "conversion_error", cart.ConversionError), "teamcart.payment_settled_conversion_pending")
	}
	return cart, nil
}
