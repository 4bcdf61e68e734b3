package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"moss.dev/internal/audit"
	"moss.dev/internal/oauth"
)

type authorizeRequest struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

type authorizeResponse struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	ExpiresIn   int64  `json:"expires_in"`
}

type revokeRequest struct {
	Token        string `json:"token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// handleAuthorize mints an authorization code for the authenticated user.
// The route sits behind bearer auth; a client-credentials token has no user
// and cannot authorize.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ac, ok := oauth.AuthFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if ac.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "authorization requires a user context")
		return
	}

	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	code, err := a.oauth.IssueAuthorizationCode(r.Context(), oauth.AuthorizeRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		UserID:              ac.UserID,
	})
	if err != nil {
		handleOAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.code.issued", map[string]any{
		"client_id": req.ClientID,
		"scope":     strings.Join(oauth.StringsFromScopes(code.Scopes), " "),
	})
	writeJSON(w, http.StatusOK, authorizeResponse{
		Code:        code.Code,
		RedirectURI: code.RedirectURI,
		ExpiresIn:   int64(oauth.AuthorizationCodeTTL.Seconds()),
	})
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req oauth.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	resp, err := a.oauth.Token(r.Context(), req)
	if err != nil {
		handleTokenError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "oauth.token.issued", map[string]any{
		"client_id":  req.ClientID,
		"grant_type": req.GrantType,
		"scope":      resp.Scope,
	})
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := a.oauth.Revoke(r.Context(), req.ClientID, req.ClientSecret, req.Token); err != nil {
		handleTokenError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.token.revoked", map[string]any{
		"client_id": req.ClientID,
	})
	// RFC 7009: the revocation endpoint answers 200 regardless of whether
	// the token was known.
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// writeOAuthError emits the standard OAuth error body.
func writeOAuthError(w http.ResponseWriter, code int, oauthErr, description string) {
	writeJSON(w, code, map[string]any{
		"error":             oauthErr,
		"error_description": description,
	})
}

// handleTokenError maps token/revocation endpoint failures to RFC 6749
// error codes.
func handleTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oauth.ErrAuthenticationFailed):
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
	case errors.Is(err, oauth.ErrInvalidGrant):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "grant is invalid, expired or revoked")
	case errors.Is(err, oauth.ErrScopeDenied):
		writeOAuthError(w, http.StatusBadRequest, "invalid_scope", err.Error())
	case errors.Is(err, oauth.ErrUnsupportedGrantType):
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", err.Error())
	case errors.Is(err, oauth.ErrInvalidRequest):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "token operation failed")
	}
}

// handleOAuthError is the plain-JSON variant for the authorize endpoint.
func handleOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, oauth.ErrAuthenticationFailed):
		writeError(w, r, http.StatusUnauthorized, "unknown or inactive client")
	case errors.Is(err, oauth.ErrScopeDenied):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, oauth.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "authorization failed")
	}
}
