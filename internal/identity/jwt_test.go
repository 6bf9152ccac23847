package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, issuer, subject string, groups []string, expiry time.Duration) string {
	claims := Claims{
		Subject: subject,
		Groups:  groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTIdentityProviderValidToken(t *testing.T) {
	provider := New("secret", "monk-api")
	token := signToken(t, "secret", "monk-api", "user-1", []string{"role:admin"}, time.Hour)

	ctx := TokenContext(context.Background(), token)
	identity, err := provider.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.Subject)
	assert.Equal(t, []string{"role:admin"}, identity.Groups)
	assert.Equal(t, []string{"user-1", "role:admin"}, identity.Set())
}

func TestJWTIdentityProviderMissingToken(t *testing.T) {
	provider := New("secret", "monk-api")
	_, err := provider.Identity(context.Background())
	require.Error(t, err)
}

func TestJWTIdentityProviderWrongSecret(t *testing.T) {
	provider := New("secret", "monk-api")
	token := signToken(t, "other-secret", "monk-api", "user-1", nil, time.Hour)

	ctx := TokenContext(context.Background(), token)
	_, err := provider.Identity(ctx)
	require.Error(t, err)
}

func TestJWTIdentityProviderExpiredToken(t *testing.T) {
	provider := New("secret", "monk-api")
	token := signToken(t, "secret", "monk-api", "user-1", nil, -time.Hour)

	ctx := TokenContext(context.Background(), token)
	_, err := provider.Identity(ctx)
	require.Error(t, err)
}

func TestJWTIdentityProviderWrongIssuer(t *testing.T) {
	provider := New("secret", "monk-api")
	token := signToken(t, "secret", "someone-else", "user-1", nil, time.Hour)

	ctx := TokenContext(context.Background(), token)
	_, err := provider.Identity(ctx)
	require.Error(t, err)
}
