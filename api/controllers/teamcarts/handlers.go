package teamcarts

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/api/middleware"
	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/api/validators"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const cartIDParam = "cartId"

// Engine is the command surface of the team cart lifecycle.
type Engine interface {
	Create(ctx context.Context, cmd teamcart.CreateCommand) (*teamcart.CreateResult, error)
	Join(ctx context.Context, cmd teamcart.JoinCommand) (*teamcart.TeamCart, error)
	AddItem(ctx context.Context, cmd teamcart.AddItemCommand) (*teamcart.TeamCart, error)
	RemoveItem(ctx context.Context, cmd teamcart.RemoveItemCommand) (*teamcart.TeamCart, error)
	UpdateQuantity(ctx context.Context, cmd teamcart.UpdateQuantityCommand) (*teamcart.TeamCart, error)
	SetMemberReady(ctx context.Context, cmd teamcart.SetMemberReadyCommand) (*teamcart.TeamCart, error)
	ApplyCoupon(ctx context.Context, cmd teamcart.ApplyCouponCommand) (*teamcart.TeamCart, error)
	RemoveCoupon(ctx context.Context, cmd teamcart.RemoveCouponCommand) (*teamcart.TeamCart, error)
	SetTip(ctx context.Context, cmd teamcart.SetTipCommand) (*teamcart.TeamCart, error)
	Lock(ctx context.Context, cmd teamcart.LockCommand) (*teamcart.TeamCart, error)
	RecordMemberPayment(ctx context.Context, cmd teamcart.RecordPaymentCommand) (*teamcart.TeamCart, error)
	Convert(ctx context.Context, cmd teamcart.ConvertCommand) (*teamcart.TeamCart, error)
	Cancel(ctx context.Context, cmd teamcart.CancelCommand) (*teamcart.TeamCart, error)
	GetViewModel(ctx context.Context, cartID, viewerID uuid.UUID) (*teamcart.View, error)
}

// Create opens a team cart hosted by the caller.
func Create(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := authenticated(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID := caller.UserID
		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.Create(r.Context(), payload.command(userID, caller.Name))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createResponse{
			Cart:       teamcart.NewView(result.Cart, userID),
			ShareToken: result.ShareToken,
		})
	}
}

// Join adds the caller through a share token. No cart id is needed: the
// token resolves to one.
func Join(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := authenticated(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload joinRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		name := payload.DisplayName
		if name == "" {
			name = caller.Name
		}
		cart, err := engine.Join(r.Context(), teamcart.JoinCommand{
			ShareToken:  payload.ShareToken,
			UserID:      caller.UserID,
			DisplayName: name,
		})
		writeCart(w, r, logg, cart, caller.UserID, err)
	}
}

func Get(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := engine.GetViewModel(r.Context(), cartID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func AddItem(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cmd, err := payload.command(cartID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.AddItem(r.Context(), cmd)
		writeCart(w, r, logg, cart, userID, err)
	}
}

func RemoveItem(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload versionOnlyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.RemoveItem(r.Context(), teamcart.RemoveItemCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			ItemID:          itemID,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func UpdateQuantity(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.UpdateQuantity(r.Context(), teamcart.UpdateQuantityCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			ItemID:          itemID,
			Quantity:        payload.Quantity,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func SetReady(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload readyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.SetMemberReady(r.Context(), teamcart.SetMemberReadyCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			Ready:           *payload.Ready,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func ApplyCoupon(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.ApplyCoupon(r.Context(), teamcart.ApplyCouponCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			Code:            payload.Code,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func RemoveCoupon(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload versionOnlyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.RemoveCoupon(r.Context(), teamcart.RemoveCouponCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func SetTip(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload tipRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.SetTip(r.Context(), teamcart.SetTipCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			Amount:          amount,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func Lock(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload versionOnlyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.Lock(r.Context(), teamcart.LockCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

// CommitCashOnDelivery records the caller's promise to pay their share on
// delivery. Online outcomes arrive through the payments webhook instead.
func CommitCashOnDelivery(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cashOnDeliveryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.RecordMemberPayment(r.Context(), teamcart.RecordPaymentCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
			Outcome: teamcart.PaymentOutcome{
				Status: enums.PaymentStatusCommitted,
				Method: enums.PaymentMethodCashOnDelivery,
				Amount: amount,
			},
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func Convert(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload versionOnlyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.Convert(r.Context(), teamcart.ConvertCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func Cancel(engine Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, cartID, err := callerAndCart(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload versionOnlyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := engine.Cancel(r.Context(), teamcart.CancelCommand{
			CartID:          cartID,
			ExpectedVersion: payload.expected(),
			UserID:          userID,
		})
		writeCart(w, r, logg, cart, userID, err)
	}
}

func writeCart(w http.ResponseWriter, r *http.Request, logg *logger.Logger, cart *teamcart.TeamCart, viewer uuid.UUID, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, teamcart.NewView(cart, viewer))
}

func authenticated(r *http.Request) (middleware.Caller, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return middleware.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return caller, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	caller, err := authenticated(r)
	return caller.UserID, err
}

func callerAndCart(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := callerID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	cartID, err := validators.PathUUID(r, cartIDParam)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, cartID, nil
}
