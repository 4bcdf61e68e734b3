package oauth

import "errors"

var (
	// ErrInvalidRequest flags malformed input, e.g. an unsupported PKCE method.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrUnsupportedGrantType flags a grant_type outside the supported set.
	ErrUnsupportedGrantType = errors.New("oauth: unsupported grant type")
	// ErrAuthenticationFailed covers bad client credentials. Deliberately
	// generic: external callers must not learn which part failed.
	ErrAuthenticationFailed = errors.New("oauth: authentication failed")
	// ErrInvalidGrant covers every code/refresh exchange failure. The
	// specific reason stays in the logs.
	ErrInvalidGrant = errors.New("oauth: invalid grant")

	ErrTokenInvalid = errors.New("oauth: token invalid")
	ErrTokenExpired = errors.New("oauth: token expired")
	ErrTokenRevoked = errors.New("oauth: token revoked")
	ErrScopeDenied  = errors.New("oauth: scope denied")

	ErrMissingAuthorization   = errors.New("oauth: missing authorization header")
	ErrMalformedAuthorization = errors.New("oauth: malformed authorization header")

	ErrNotFound      = errors.New("oauth: not found")
	ErrAlreadyExists = errors.New("oauth: already exists")
)
