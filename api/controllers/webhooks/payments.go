package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/api/validators"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/payments"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const (
	SignatureHeader     = "X-TeamCart-Signature"
	maxWebhookBodyBytes = 64 << 10
)

type paymentHandler interface {
	Handle(ctx context.Context, evt payments.Event) (*teamcart.TeamCart, error)
}

type paymentAck struct {
	EventID    string `json:"eventId"`
	Duplicate  bool   `json:"duplicate"`
	CartStatus string `json:"cartStatus,omitempty"`
	Version    int64  `json:"version,omitempty"`
}

// PaymentsWebhook applies a signed gateway callback to a locked team cart.
// Redelivered events are acknowledged without being applied twice.
func PaymentsWebhook(consumer paymentHandler, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if consumer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment consumer unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !validSignature(payload, secret, r.Header.Get(SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event payments.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment event"))
			return
		}
		event.EventID = strings.TrimSpace(event.EventID)
		if err := validators.Struct(&event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cart, err := consumer.Handle(ctx, event)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
				responses.WriteSuccess(w, paymentAck{EventID: event.EventID, Duplicate: true})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentAck{
			EventID:    event.EventID,
			CartStatus: cart.Status.String(),
			Version:    cart.Version,
		})
	}
}

// Sign returns the hex HMAC-SHA256 of payload, the value gateways send in
// SignatureHeader.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(payload []byte, secret, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(header)))
}
