package teamcart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/google/uuid"
)

// EngineParams wire the lifecycle engine.
type EngineParams struct {
	Store       Store
	ShareTokens ShareTokens
	Coupons     CouponPricing
	Converter   OrderConverter
	Notifier    Notifier
	Clock       Clock
	Logger      *logger.Logger
	Metrics     *metrics.TeamCartMetrics
	Settings    Settings
}

// Engine applies lifecycle commands with optimistic concurrency. It holds no
// per-cart state; every command is a read-modify-compare-and-swap loop.
type Engine struct {
	store     Store
	tokens    ShareTokens
	coupons   CouponPricing
	converter OrderConverter
	notifier  Notifier
	clock     Clock
	logg      *logger.Logger
	metrics   *metrics.TeamCartMetrics
	settings  Settings
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("team cart store required")
	}
	if params.ShareTokens == nil {
		return nil, fmt.Errorf("share token service required")
	}
	if params.Converter == nil {
		return nil, fmt.Errorf("order converter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{
		store:     params.Store,
		tokens:    params.ShareTokens,
		coupons:   params.Coupons,
		converter: params.Converter,
		notifier:  params.Notifier,
		clock:     clock,
		logg:      params.Logger,
		metrics:   params.Metrics,
		settings:  params.Settings.withDefaults(),
	}, nil
}

// errUnchanged lets a transition report an idempotent no-op.
var errUnchanged = errors.New("team cart unchanged")

type eventKind int

const (
	eventLocked eventKind = iota
	eventReadyToConfirm
	eventPayment
	eventConverted
	eventExpired
	eventCancelled
)

type event struct {
	kind    eventKind
	userID  uuid.UUID
	status  enums.PaymentStatus
	orderID uuid.UUID
}

// changeSet collects the notifications a transition produces; they are sent
// only after the write commits. order is set when the transition wrote an
// order that the write must carry.
type changeSet struct {
	events []event
	order  uuid.UUID
}

func (c *changeSet) emit(e event) {
	c.events = append(c.events, e)
}

type transition func(ctx context.Context, cart *TeamCart, now time.Time, changes *changeSet) error

func (e *Engine) mutate(ctx context.Context, command string, cartID uuid.UUID, expected int64, apply transition) (*TeamCart, error) {
	ctx = e.logg.WithCartID(ctx, cartID.String())
	ctx = e.logg.WithCommand(ctx, command)

	cart, err := e.runLoop(ctx, command, cartID, expected, apply)
	e.observe(ctx, command, err)
	return cart, err
}

func (e *Engine) runLoop(ctx context.Context, command string, cartID uuid.UUID, expected int64, apply transition) (*TeamCart, error) {
	if cartID == uuid.Nil {
		return nil, validation("team cart id is required")
	}
	if expected < AnyVersion {
		return nil, validation("expected version must not be negative")
	}

	for attempt := 1; attempt <= e.settings.RetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}

		current, version, err := e.store.Get(ctx, cartID)
		if err != nil {
			return nil, storeError(err)
		}
		if expected != AnyVersion && expected != version {
			return nil, versionConflict(expected, version)
		}

		now := e.clock.Now()
		next := current.Clone()
		changes := &changeSet{}
		if err := apply(ctx, next, now, changes); err != nil {
			if errors.Is(err, errUnchanged) {
				return current, nil
			}
			return nil, err
		}
		next.Version = version + 1
		next.UpdatedAt = now

		err = e.store.CompareAndSwap(ctx, cartID, version, next)
		if err == nil {
			e.dispatch(ctx, next, changes)
			return next, nil
		}
		if changes.order != uuid.Nil {
			e.releaseOrder(ctx, cartID, changes.order)
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, storeError(err)
		}
		e.metrics.IncConflict(command)
		if expected != AnyVersion {
			return nil, pkgerrors.New(pkgerrors.CodeVersionConflict, "team cart was modified; reload and retry").
				WithDetails(map[string]any{"expected_version": expected})
		}
		e.logg.Debug(e.logg.WithField(ctx, "attempt", attempt), "teamcart.cas_retry")
	}

	return nil, pkgerrors.New(pkgerrors.CodeVersionConflict, "team cart is busy; try again").
		WithDetails(map[string]any{"retry_budget": e.settings.RetryBudget})
}

// releaseOrder voids an order written during an attempt whose write did not
// land. An order the stored cart already references is kept, which covers a
// write that failed on the wire after committing. When the cart cannot be
// read the order stays; a later conversion of a newer version replaces it.
func (e *Engine) releaseOrder(ctx context.Context, cartID, orderID uuid.UUID) {
	ctx = e.logg.WithField(context.WithoutCancel(ctx), "order_id", orderID.String())
	current, _, err := e.store.Get(ctx, cartID)
	switch {
	case err == nil:
		if current.OrderID != nil && *current.OrderID == orderID {
			return
		}
	case !errors.Is(err, ErrCartNotFound):
		e.logg.Error(ctx, "teamcart.order_release_skipped", err)
		return
	}
	if err := e.converter.Void(ctx, cartID, orderID); err != nil {
		e.logg.Error(ctx, "teamcart.order_void_failed", err)
		return
	}
	e.logg.Warn(ctx, "teamcart.order_voided")
}

func (e *Engine) observe(ctx context.Context, command string, err error) {
	if err == nil {
		e.metrics.ObserveCommand(command, "ok")
		return
	}
	code := pkgerrors.CodeOf(err)
	e.metrics.ObserveCommand(command, string(code))
	if code == pkgerrors.CodeDependency || code == pkgerrors.CodeInternal {
		e.logg.Error(ctx, "teamcart.command_failed", err)
	}
}

// dispatch sends notifications on a context detached from the caller's
// cancellation. Failures are logged and never surface to the caller.
func (e *Engine) dispatch(ctx context.Context, cart *TeamCart, changes *changeSet) {
	if e.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settings.NotifyTimeout)
	defer cancel()

	if err := e.notifier.NotifyCartUpdated(nctx, cart.ID, cart.Version); err != nil {
		e.logg.Warn(e.logg.WithField(nctx, "error", err.Error()), "teamcart.notify_failed")
	}
	for _, ev := range changes.events {
		if err := e.notify(nctx, cart.ID, ev); err != nil {
			e.logg.Warn(e.logg.WithField(nctx, "error", err.Error()), "teamcart.notify_failed")
		}
	}
}

func (e *Engine) notify(ctx context.Context, cartID uuid.UUID, ev event) error {
	switch ev.kind {
	case eventLocked:
		return e.notifier.NotifyLocked(ctx, cartID)
	case eventReadyToConfirm:
		return e.notifier.NotifyReadyToConfirm(ctx, cartID)
	case eventPayment:
		return e.notifier.NotifyPaymentEvent(ctx, cartID, ev.userID, ev.status)
	case eventConverted:
		return e.notifier.NotifyConverted(ctx, cartID, ev.orderID)
	case eventExpired:
		return e.notifier.NotifyExpired(ctx, cartID)
	case eventCancelled:
		return e.notifier.NotifyCancelled(ctx, cartID)
	default:
		return fmt.Errorf("unknown event kind %d", ev.kind)
	}
}

// GetViewModel returns a member's read-only snapshot. Viewing an open cart
// without a hard deadline slides its expiry forward without a version bump.
func (e *Engine) GetViewModel(ctx context.Context, cartID, viewerID uuid.UUID) (*View, error) {
	cart, _, err := e.store.Get(ctx, cartID)
	if err != nil {
		return nil, storeError(err)
	}
	if !cart.IsMember(viewerID) {
		return nil, forbidden("only members can view this team cart")
	}

	now := e.clock.Now()
	if cart.Status == enums.TeamCartStatusOpen && cart.Deadline == nil && now.Before(cart.ExpiresAt) {
		slid := now.Add(e.settings.TTL)
		if slid.After(cart.ExpiresAt) {
			if err := e.store.Touch(ctx, cartID, slid); err != nil {
				e.logg.Warn(e.logg.WithField(e.logg.WithCartID(ctx, cartID.String()), "error", err.Error()), "teamcart.touch_failed")
			} else {
				cart.ExpiresAt = slid
			}
		}
	}
	return NewView(cart, viewerID), nil
}
