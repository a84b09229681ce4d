package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	pkgAuth "github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth admits requests carrying a valid access token and attaches the Caller.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			id, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithCaller(r.Context(), Caller{UserID: id.UserID, Name: id.Name})
			if logg != nil {
				ctx = logg.WithUserID(ctx, id.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, bearerScheme) {
		header = strings.TrimSpace(rest)
	}
	return header, header != ""
}
