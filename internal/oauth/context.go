package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AuthContext is what downstream consumers receive after bearer validation.
// UserID is empty for client-credentials tokens.
type AuthContext struct {
	UserID   string
	ClientID string
	Scopes   []Scope
}

// HasScope reports whether the context carries the scope.
func (a AuthContext) HasScope(scope Scope) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether the context carries at least one of the scopes.
func (a AuthContext) HasAnyScope(scopes ...Scope) bool {
	for _, s := range scopes {
		if a.HasScope(s) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether the context carries every scope.
func (a AuthContext) HasAllScopes(scopes ...Scope) bool {
	for _, s := range scopes {
		if !a.HasScope(s) {
			return false
		}
	}
	return true
}

// RequireScope returns ErrScopeDenied when the scope is absent.
func (a AuthContext) RequireScope(scope Scope) error {
	if !a.HasScope(scope) {
		return fmt.Errorf("%w: missing required scope %s", ErrScopeDenied, scope)
	}
	return nil
}

const bearerPrefix = "Bearer "

// ValidateBearer validates an Authorization header end to end: header shape,
// JWT signature and claims, then the stored record for revocation and the
// database-side expiry cross-check. Each failure class gets its own error so
// the HTTP layer can log precisely while returning 401 for all of them.
func (s *Server) ValidateBearer(ctx context.Context, authHeader string) (AuthContext, error) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return AuthContext{}, ErrMissingAuthorization
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return AuthContext{}, ErrMalformedAuthorization
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return AuthContext{}, ErrMalformedAuthorization
	}

	claims, err := s.codec.verifyAccessToken(token)
	if err != nil {
		return AuthContext{}, err // ErrTokenInvalid or ErrTokenExpired
	}

	record, err := s.store.Tokens(ctx).FindByAccessHash(ctx, HashAccessToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown to the store means revoked-or-never-issued; either
			// way the bearer is not welcome.
			return AuthContext{}, ErrTokenRevoked
		}
		return AuthContext{}, err
	}
	if record.Revoked {
		return AuthContext{}, ErrTokenRevoked
	}
	if s.now().After(record.AccessExpiresAt) {
		return AuthContext{}, ErrTokenExpired
	}

	return AuthContext{
		UserID:   claims.Subject,
		ClientID: claims.ClientID,
		Scopes:   ScopesFromStrings(claims.Scopes),
	}, nil
}

type authContextKey struct{}

// ContextWithAuth attaches the validated auth context.
func ContextWithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthFromContext extracts the auth context placed by the bearer middleware.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	ac, ok := ctx.Value(authContextKey{}).(AuthContext)
	return ac, ok
}
