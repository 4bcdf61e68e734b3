package oauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"moss.dev/internal/ids"
	"moss.dev/internal/obs"
)

// Grant type values accepted on the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// Server orchestrates the code, token, refresh and revoke flows.
type Server struct {
	store    Store
	registry *Registry
	codec    *Codec
	now      func() time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerClock overrides the time source (useful for tests).
func WithServerClock(fn func() time.Time) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewServer constructs the authorization server.
func NewServer(store Store, codec *Codec, opts ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidRequest)
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidRequest)
	}
	s := &Server{
		store:    store,
		registry: NewRegistry(storeClients{store}),
		codec:    codec,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// storeClients adapts a Store to the Registry's ClientStore dependency so the
// registry always sees the store bound to the caller's context.
type storeClients struct{ store Store }

func (s storeClients) CreateClient(ctx context.Context, c *Client) error {
	return s.store.Clients(ctx).CreateClient(ctx, c)
}

func (s storeClients) FindClient(ctx context.Context, clientID string) (*Client, error) {
	return s.store.Clients(ctx).FindClient(ctx, clientID)
}

// Registry exposes the server's client registry (client provisioning).
func (s *Server) Registry() *Registry { return s.registry }

// AuthorizeRequest carries the parameters of an authorization request made
// by an already-authenticated user.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
}

// IssueAuthorizationCode validates an authorization request and mints a
// single-use code bound to the PKCE challenge.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req AuthorizeRequest) (*CodeRecord, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	client, err := s.store.Clients(ctx).FindClient(ctx, strings.TrimSpace(req.ClientID))
	if err != nil || !client.Active {
		return nil, ErrAuthenticationFailed
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return nil, fmt.Errorf("%w: redirect_uri is not registered for this client", ErrInvalidRequest)
	}
	if req.CodeChallengeMethod != PKCEMethodS256 {
		return nil, fmt.Errorf("%w: code_challenge_method must be S256", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.CodeChallenge) == "" {
		return nil, fmt.Errorf("%w: code_challenge is required", ErrInvalidRequest)
	}
	granted, rejected := s.registry.ValidateScopes(client, ParseScopes(req.Scope))
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrScopeDenied, strings.Join(rejected, " "))
	}

	rec := &CodeRecord{
		ID:                  ids.New(),
		Code:                randomToken(24),
		ClientID:            client.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              granted,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           s.now().UTC().Add(AuthorizationCodeTTL),
	}
	if err := s.store.Codes(ctx).CreateAuthorizationCode(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// TokenRequest is the decoded body of a token endpoint call.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenResponse is the standard OAuth 2.1 token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Token handles the three supported grants. All exchange failures surface a
// generic ErrInvalidGrant; the specific reason is logged internally so the
// endpoint cannot be used as an oracle.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.exchangeCode(ctx, client, req)
	case GrantRefreshToken:
		return s.refresh(ctx, client, req)
	case GrantClientCredentials:
		return s.clientCredentials(ctx, client, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType)
	}
}

func (s *Server) exchangeCode(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	code, err := s.store.Codes(ctx).ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, s.invalidGrant(client.ClientID, "authorization code missing, expired or replayed")
	}
	if code.ClientID != client.ClientID {
		return nil, s.invalidGrant(client.ClientID, "authorization code issued to a different client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, s.invalidGrant(client.ClientID, "redirect_uri mismatch")
	}
	if !VerifyPKCE(req.CodeVerifier, code.CodeChallenge) {
		return nil, s.invalidGrant(client.ClientID, "PKCE verification failed")
	}
	resp, err := s.mint(ctx, client, code.UserID, code.Scopes, true)
	if err != nil {
		return nil, err
	}
	obs.TokenIssued(GrantAuthorizationCode)
	return resp, nil
}

func (s *Server) refresh(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	claims, ok := s.codec.VerifyRefreshToken(req.RefreshToken)
	if !ok {
		return nil, s.invalidGrant(client.ClientID, "refresh token failed verification")
	}
	if claims.ClientID != client.ClientID {
		return nil, s.invalidGrant(client.ClientID, "refresh token issued to a different client")
	}
	tokens := s.store.Tokens(ctx)
	record, err := tokens.FindByRefreshJTI(ctx, claims.ID)
	if err != nil {
		return nil, s.invalidGrant(client.ClientID, "refresh token unknown")
	}
	if record.Revoked {
		return nil, s.invalidGrant(client.ClientID, "refresh token revoked")
	}

	// Optional scope parameter may only narrow the original grant.
	scopes := record.Scopes
	if req.Scope != "" {
		granted, rejected := ValidateScopes(ParseScopes(req.Scope), record.Scopes)
		if len(rejected) > 0 {
			return nil, fmt.Errorf("%w: requested scope exceeds granted scope", ErrScopeDenied)
		}
		scopes = granted
	}

	accessToken, accessExp, err := s.codec.SignAccessToken(record.UserID, client.ClientID, scopes)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, refreshExp, err := s.codec.SignRefreshToken(record.UserID, client.ClientID)
	if err != nil {
		return nil, err
	}
	newRec := &TokenRecord{
		AccessTokenHash:  HashAccessToken(accessToken),
		RefreshJTI:       jti,
		ClientID:         client.ClientID,
		UserID:           record.UserID,
		Scopes:           scopes,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	// Rotation: the old refresh token dies with the birth of the new one.
	if err := tokens.Rotate(ctx, record.ID, newRec); err != nil {
		return nil, err
	}
	obs.TokenIssued(GrantRefreshToken)
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        FormatScopes(scopes),
	}, nil
}

func (s *Server) clientCredentials(ctx context.Context, client *Client, req TokenRequest) (*TokenResponse, error) {
	if client.Type != ClientConfidential {
		return nil, ErrAuthenticationFailed
	}
	granted, rejected := s.registry.ValidateScopes(client, ParseScopes(req.Scope))
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrScopeDenied, strings.Join(rejected, " "))
	}
	// No user context and no refresh token on this grant.
	accessToken, accessExp, err := s.codec.SignAccessToken("", client.ClientID, granted)
	if err != nil {
		return nil, err
	}
	rec := &TokenRecord{
		AccessTokenHash: HashAccessToken(accessToken),
		ClientID:        client.ClientID,
		Scopes:          granted,
		AccessExpiresAt: accessExp,
	}
	if err := s.store.Tokens(ctx).RecordIssuance(ctx, rec); err != nil {
		return nil, err
	}
	obs.TokenIssued(GrantClientCredentials)
	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(AccessTokenTTL.Seconds()),
		Scope:       FormatScopes(granted),
	}, nil
}

func (s *Server) mint(ctx context.Context, client *Client, userID string, scopes []Scope, withRefresh bool) (*TokenResponse, error) {
	accessToken, accessExp, err := s.codec.SignAccessToken(userID, client.ClientID, scopes)
	if err != nil {
		return nil, err
	}
	rec := &TokenRecord{
		AccessTokenHash: HashAccessToken(accessToken),
		ClientID:        client.ClientID,
		UserID:          userID,
		Scopes:          scopes,
		AccessExpiresAt: accessExp,
	}
	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(AccessTokenTTL.Seconds()),
		Scope:       FormatScopes(scopes),
	}
	if withRefresh {
		refreshToken, jti, refreshExp, err := s.codec.SignRefreshToken(userID, client.ClientID)
		if err != nil {
			return nil, err
		}
		rec.RefreshJTI = jti
		rec.RefreshExpiresAt = refreshExp
		resp.RefreshToken = refreshToken
	}
	if err := s.store.Tokens(ctx).RecordIssuance(ctx, rec); err != nil {
		return nil, err
	}
	return resp, nil
}

// Revoke marks the token (access or refresh) revoked. Idempotent, and per
// RFC 7009 an unknown token is not an error: the caller learns nothing about
// which tokens exist.
func (s *Server) Revoke(ctx context.Context, clientID, clientSecret, token string) error {
	client, err := s.registry.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}
	tokens := s.store.Tokens(ctx)

	record, err := tokens.FindByAccessHash(ctx, HashAccessToken(token))
	if err != nil {
		if claims, ok := s.codec.VerifyRefreshToken(token); ok {
			record, err = tokens.FindByRefreshJTI(ctx, claims.ID)
		}
		if err != nil || record == nil {
			return nil
		}
	}
	if record.ClientID != client.ClientID {
		return nil
	}
	if err := tokens.Revoke(ctx, record.ID); err != nil {
		return err
	}
	obs.TokenRevoked()
	return nil
}

// invalidGrant logs the real reason and returns the generic error.
func (s *Server) invalidGrant(clientID, reason string) error {
	obs.LogEvent(map[string]any{
		"ts":        s.now().UTC().Format(time.RFC3339Nano),
		"level":     "warn",
		"msg":       "token exchange rejected",
		"client_id": clientID,
		"reason":    reason,
	})
	return ErrInvalidGrant
}
