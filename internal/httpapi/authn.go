package httpapi

import (
	"errors"
	"net/http"

	"moss.dev/internal/oauth"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/oauth/token",
	"/oauth/revoke",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth validates the bearer token on every non-public route and attaches
// the resulting auth context. All token failures are 401; the precise class
// only shows up in the error message.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ac, err := a.oauth.ValidateBearer(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			switch {
			case errors.Is(err, oauth.ErrMissingAuthorization):
				writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			case errors.Is(err, oauth.ErrMalformedAuthorization):
				writeError(w, r, http.StatusUnauthorized, "invalid authorization scheme")
			case errors.Is(err, oauth.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, "token expired")
			case errors.Is(err, oauth.ErrTokenRevoked):
				writeError(w, r, http.StatusUnauthorized, "token revoked")
			case errors.Is(err, oauth.ErrTokenInvalid):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(oauth.ContextWithAuth(r.Context(), ac)))
	})
}

// ensureScope answers 403 when the caller's token lacks the scope. Returns
// false when the request has already been answered.
func (a *API) ensureScope(w http.ResponseWriter, r *http.Request, scope oauth.Scope) bool {
	ac, ok := oauth.AuthFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return false
	}
	if err := ac.RequireScope(scope); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return false
	}
	return true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
