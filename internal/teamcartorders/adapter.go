package teamcartorders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	dbpkg "github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueTeamCartOrder = "ux_team_cart_orders_team_cart"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	Retract(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error)
}

// errStaleSnapshot means a newer version of the cart already produced an
// order; the caller's write is bound to lose its compare-and-swap.
var errStaleSnapshot = errors.New("team cart snapshot is older than its order")

type AdapterParams struct {
	DB     txRunner
	Repo   Repository
	Outbox eventEmitter
	Logger *logger.Logger
}

// Adapter converts settled team carts into orders. Orders are keyed by cart id
// and cart version: a replay at the same version returns the order written
// the first time, and an order left by an older version is voided and
// replaced, since that version can no longer commit.
type Adapter struct {
	db     txRunner
	repo   Repository
	outbox eventEmitter
	logg   *logger.Logger
}

func NewAdapter(params AdapterParams) (*Adapter, error) {
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("order repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Adapter{db: params.DB, repo: params.Repo, outbox: params.Outbox, logg: logg}, nil
}

func (a *Adapter) Convert(ctx context.Context, snapshot *teamcart.TeamCart) (uuid.UUID, error) {
	if snapshot == nil || snapshot.ID == uuid.Nil {
		return uuid.Nil, errors.New("team cart snapshot required")
	}
	var orderID uuid.UUID
	created := false
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.repo.WithTx(tx)
		existing, err := repo.FindByTeamCartID(ctx, snapshot.ID)
		if err != nil {
			return fmt.Errorf("find order: %w", err)
		}
		if existing != nil {
			switch {
			case existing.CartVersion == snapshot.Version:
				orderID = existing.ID
				return nil
			case existing.CartVersion > snapshot.Version:
				return errStaleSnapshot
			}
			if err := a.voidTx(ctx, tx, existing); err != nil {
				return err
			}
		}

		order, err := buildOrder(snapshot)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := a.outbox.EmitOnce(ctx, tx, convertedEvent(snapshot, order)); err != nil {
			return fmt.Errorf("emit converted event: %w", err)
		}
		orderID = order.ID
		created = true
		return nil
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, uniqueTeamCartOrder) {
			return a.existingOrderID(ctx, snapshot, err)
		}
		return uuid.Nil, err
	}

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"team_cart_id": snapshot.ID.String(),
		"order_id":     orderID.String(),
		"replayed":     !created,
	})
	a.logg.Info(logCtx, "team cart order ready")
	return orderID, nil
}

// Void withdraws an order whose cart never recorded it. Unknown orders are
// ignored so repeated calls are harmless.
func (a *Adapter) Void(ctx context.Context, teamCartID, orderID uuid.UUID) error {
	return a.db.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := a.repo.WithTx(tx).FindByTeamCartID(ctx, teamCartID)
		if err != nil {
			return fmt.Errorf("find order: %w", err)
		}
		if existing == nil || existing.ID != orderID {
			return nil
		}
		return a.voidTx(ctx, tx, existing)
	})
}

// voidTx deletes the order. The converted event is dropped while still
// queued; once relayed, subscribers get a voided event instead.
func (a *Adapter) voidTx(ctx context.Context, tx *gorm.DB, order *models.TeamCartOrder) error {
	if err := a.repo.WithTx(tx).Delete(ctx, order.ID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	retracted, err := a.outbox.Retract(ctx, tx, enums.EventTeamCartConverted, enums.AggregateTeamCartOrder, order.ID)
	if err != nil {
		return fmt.Errorf("retract converted event: %w", err)
	}
	if !retracted {
		if err := a.outbox.EmitOnce(ctx, tx, voidedEvent(order)); err != nil {
			return fmt.Errorf("emit voided event: %w", err)
		}
	}
	a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
		"team_cart_id": order.TeamCartID.String(),
		"order_id":     order.ID.String(),
		"cart_version": order.CartVersion,
		"announced":    !retracted,
	}), "team cart order voided")
	return nil
}

// existingOrderID resolves the order a concurrent conversion of the same cart
// version committed first.
func (a *Adapter) existingOrderID(ctx context.Context, snapshot *teamcart.TeamCart, cause error) (uuid.UUID, error) {
	existing, err := a.repo.FindByTeamCartID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if existing == nil || existing.CartVersion != snapshot.Version {
		return uuid.Nil, cause
	}
	return existing.ID, nil
}

func buildOrder(cart *teamcart.TeamCart) (*models.TeamCartOrder, error) {
	order := &models.TeamCartOrder{
		ID:                   uuid.New(),
		TeamCartID:           cart.ID,
		RestaurantID:         cart.RestaurantID,
		HostUserID:           cart.HostUserID,
		Currency:             cart.Currency,
		Subtotal:             cart.Subtotal,
		DiscountAmount:       cart.DiscountAmount,
		TaxAmount:            cart.TaxAmount,
		DeliveryFee:          cart.DeliveryFee,
		TipAmount:            cart.TipAmount,
		Total:                cart.Total,
		CashOnDeliveryAmount: cart.CashOnDeliveryPortion,
		CouponID:             cart.AppliedCouponID,
		CartVersion:          cart.Version,
	}
	if cart.AppliedCouponCode != "" {
		code := cart.AppliedCouponCode
		order.CouponCode = &code
	}

	for _, item := range cart.Items {
		customizations := item.Customizations
		if customizations == nil {
			customizations = []teamcart.Customization{}
		}
		raw, err := json.Marshal(customizations)
		if err != nil {
			return nil, fmt.Errorf("encode customizations: %w", err)
		}
		order.Items = append(order.Items, models.TeamCartOrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			AddedByUserID:  item.AddedByUserID,
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			BasePrice:      item.BasePrice,
			LineTotal:      item.LineTotal,
			Customizations: raw,
		})
	}

	for _, member := range cart.Members {
		payment := models.TeamCartOrderPayment{
			ID:              uuid.New(),
			OrderID:         order.ID,
			UserID:          member.UserID,
			DisplayName:     member.DisplayName,
			Status:          member.PaymentStatus,
			QuotedAmount:    member.QuotedAmount,
			CommittedAmount: member.CommittedAmount,
		}
		if member.PaymentMethod != "" {
			method := member.PaymentMethod
			payment.Method = &method
		}
		if member.OnlineTransactionID != "" {
			txn := member.OnlineTransactionID
			payment.TransactionID = &txn
		}
		order.Payments = append(order.Payments, payment)
	}
	return order, nil
}

func convertedEvent(cart *teamcart.TeamCart, order *models.TeamCartOrder) outbox.DomainEvent {
	members := make([]uuid.UUID, 0, len(cart.Members))
	for _, m := range cart.Members {
		members = append(members, m.UserID)
	}
	return outbox.DomainEvent{
		EventType:     enums.EventTeamCartConverted,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: cart.HostUserID, Role: string(enums.MemberRoleHost)},
		Data: payloads.TeamCartConvertedEvent{
			TeamCartID:           cart.ID,
			OrderID:              order.ID,
			RestaurantID:         cart.RestaurantID,
			HostUserID:           cart.HostUserID,
			Currency:             cart.Currency,
			Total:                teamcart.FormatAmount(cart.Total, cart.Currency),
			CashOnDeliveryAmount: teamcart.FormatAmount(cart.CashOnDeliveryPortion, cart.Currency),
			MemberIDs:            members,
			CartVersion:          cart.Version,
		},
		Version: 1,
	}
}

func voidedEvent(order *models.TeamCartOrder) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventTeamCartOrderVoided,
		AggregateType: enums.AggregateTeamCartOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.HostUserID, Role: string(enums.MemberRoleHost)},
		Data: payloads.TeamCartOrderVoidedEvent{
			TeamCartID:  order.TeamCartID,
			OrderID:     order.ID,
			CartVersion: order.CartVersion,
		},
		Version: 1,
	}
}

var _ teamcart.OrderConverter = (*Adapter)(nil)
