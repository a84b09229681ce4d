package teamcart

import (
	"context"
	"errors"

	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

// Conflict reasons carried in STATE_CONFLICT details under "reason".
const (
	ReasonInvalidTransition   = "invalid_transition"
	ReasonCartExpired         = "cart_expired"
	ReasonNotDue              = "not_due"
	ReasonAwaitingConversion  = "awaiting_conversion"
	ReasonPaymentWindowClosed = "payment_window_closed"
	ReasonAlreadyMember       = "already_member"
	ReasonMemberCapReached    = "member_cap_reached"
	ReasonNoItems             = "no_items"
	ReasonMembersNotReady     = "members_not_ready"
	ReasonNotSettled          = "not_settled"
	ReasonAlreadyPaid         = "already_paid"
	ReasonPaymentsCaptured    = "payments_captured"
	ReasonNoCoupon            = "no_coupon"
)

func stateConflict(reason, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"reason": reason})
}

func invalidTransition(command string, status enums.TeamCartStatus) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s not allowed while cart is %s", command, status).
		WithDetails(map[string]any{"reason": ReasonInvalidTransition, "status": status.String()})
}

func validation(message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message)
}

func forbidden(message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeForbidden, message)
}

func notFound(message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, message)
}

func versionConflict(expected, actual int64) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeVersionConflict, "team cart was modified; reload and retry").
		WithDetails(map[string]any{"expected_version": expected, "current_version": actual})
}

func canceled(err error) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "team cart command canceled")
}

// ConflictReason extracts the reason of a STATE_CONFLICT error, or "".
func ConflictReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

// storeError maps Store sentinels onto the error taxonomy.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "team cart not found")
	case errors.Is(err, ErrCartExists):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "team cart already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return canceled(err)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "team cart store unavailable")
	}
}
