// Package identity implements the IdentityProvider contract (spec §6)
// as a reference adapter over bearer JWTs (SPEC_FULL §4.7). Ring-2's
// QueryAccessControl builtin consumes it through observer.IdentityProvider;
// nothing here reads an HTTP request — token extraction from a request is
// an external collaborator's job.
package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ianzepp/monk-api/internal/observer"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// Claims is the JWT payload this adapter expects: a subject plus a
// groups claim used for ACL overlap checks.
type Claims struct {
	Subject string   `json:"sub"`
	Groups  []string `json:"groups"`
	jwt.RegisteredClaims
}

// JWTIdentityProvider parses a bearer token with HS256 and returns the
// principal's identity set.
type JWTIdentityProvider struct {
	secret []byte
	issuer string
}

// New builds a JWTIdentityProvider for the given secret/issuer.
func New(secret, issuer string) *JWTIdentityProvider {
	return &JWTIdentityProvider{secret: []byte(secret), issuer: issuer}
}

// contextKey is unexported to keep the bearer token out of any
// general-purpose context value space.
type contextKey struct{}

// TokenContext attaches a bearer token to ctx for a later Identity call.
func TokenContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// Identity parses the bearer token carried on ctx (via TokenContext) and
// returns the principal's identity set.
func (p *JWTIdentityProvider) Identity(ctx context.Context) (observer.Identity, error) {
	raw, _ := ctx.Value(contextKey{}).(string)
	if raw == "" {
		return observer.Identity{}, apperrors.New(apperrors.KindSecurity, "MISSING_TOKEN", "no bearer token on context")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return observer.Identity{}, apperrors.Wrap(err, apperrors.KindSecurity, "INVALID_TOKEN", "invalid token")
	}
	if !token.Valid {
		return observer.Identity{}, apperrors.New(apperrors.KindSecurity, "INVALID_TOKEN", "invalid token claims")
	}
	if p.issuer != "" && claims.Issuer != p.issuer {
		return observer.Identity{}, apperrors.New(apperrors.KindSecurity, "INVALID_TOKEN", "unexpected issuer")
	}

	return observer.Identity{Subject: claims.Subject, Groups: claims.Groups}, nil
}
