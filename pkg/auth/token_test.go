package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "teamcart", ExpirationMinutes: 30}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	userID := uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Name: " Linh "})
	require.NoError(t, err)

	id, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "Linh", id.Name)
	assert.NotEmpty(t, id.TokenID)
	assert.True(t, id.ExpiresAt.Equal(now.Add(30*time.Minute)))
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), JTI: "fixed"})
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token+"x")
	require.Error(t, err)

	other := testCfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	other = testCfg
	other.Secret = "rotated"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseAccessTokenExpiry(t *testing.T) {
	short := testCfg
	short.ExpirationMinutes = 15

	expired, err := MintAccessToken(short, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = ParseAccessToken(short, expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	// Inside the skew allowance.
	justExpired, err := MintAccessToken(short, time.Now().Add(-15*time.Minute-10*time.Second), AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = ParseAccessToken(short, justExpired)
	require.NoError(t, err)
}

func TestParseAccessTokenRequiresUserSubject(t *testing.T) {
	claims := accessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    testCfg.Issuer,
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token)
	require.Error(t, err)
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{})
	require.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Issuer: "teamcart", ExpirationMinutes: 5}, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	require.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Secret: "s", Issuer: "teamcart"}, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	require.Error(t, err)
}
