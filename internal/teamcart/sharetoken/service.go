package sharetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const audience = "teamcart:join"

var signingMethod = jwt.SigningMethodHS256

// ErrInvalidToken covers malformed, forged and expired share tokens.
var ErrInvalidToken = errors.New("invalid share token")

type claims struct {
	jwt.RegisteredClaims
}

// Service signs join links. The cart id travels as the subject, so a token
// resolves without a lookup and cannot be pointed at another cart.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

var _ teamcart.ShareTokens = (*Service)(nil)

func NewService(cfg config.ShareTokenConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("share token secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("share token issuer is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("share token ttl must be positive")
	}
	return &Service{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) Issue(cartID uuid.UUID) (string, error) {
	if cartID == uuid.Nil {
		return "", fmt.Errorf("cart id is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(signingMethod, claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   cartID.String(),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing share token: %w", err)
	}
	return signed, nil
}

func (s *Service) Resolve(token string) (uuid.UUID, error) {
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(
		token,
		parsed,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != signingMethod {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	cartID, err := uuid.Parse(parsed.Subject)
	if err != nil || cartID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return cartID, nil
}
