package httpapi

import (
	"net/http"
	"testing"

	"moss.dev/internal/oauth"
)

func TestTokenEndpointClientCredentials(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/oauth/token", map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     "mcp_backend",
		"client_secret": "s3cret",
		"scope":         "mcp:read",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	var body oauth.TokenResponse
	decodeBody(t, resp, &body)
	if body.AccessToken == "" || body.TokenType != "Bearer" {
		t.Fatalf("body: %+v", body)
	}
	if body.RefreshToken != "" {
		t.Fatalf("client credentials must not return a refresh token")
	}
}

func TestTokenEndpointBadClientSecret(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/oauth/token", map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     "mcp_backend",
		"client_secret": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["error"] != "invalid_client" {
		t.Fatalf("body: %v", body)
	}
}

func TestTokenEndpointUnsupportedGrant(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/oauth/token", map[string]any{
		"grant_type": "password",
		"client_id":  "mcp_public",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["error"] != "unsupported_grant_type" {
		t.Fatalf("body: %v", body)
	}
}

func TestAuthorizeEndpointFullFlow(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.obtainToken("user-1", "mcp:read mcp:write")

	// The authenticated user authorizes a client.
	resp := api.post("/oauth/authorize", map[string]any{
		"client_id":             "mcp_public",
		"redirect_uri":          testRedirectURI,
		"scope":                 "mcp:read",
		"code_challenge":        oauth.ChallengeS256(testVerifier),
		"code_challenge_method": "S256",
	}, api.authHeader(userToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize: expected 200, got %d", resp.StatusCode)
	}
	var authz struct {
		Code      string `json:"code"`
		ExpiresIn int64  `json:"expires_in"`
	}
	decodeBody(t, resp, &authz)
	if authz.Code == "" || authz.ExpiresIn != 600 {
		t.Fatalf("authorize body: %+v", authz)
	}

	// The client exchanges the code.
	resp = api.post("/oauth/token", map[string]any{
		"grant_type":    "authorization_code",
		"code":          authz.Code,
		"redirect_uri":  testRedirectURI,
		"code_verifier": testVerifier,
		"client_id":     "mcp_public",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exchange: expected 200, got %d", resp.StatusCode)
	}
	var token oauth.TokenResponse
	decodeBody(t, resp, &token)
	if token.AccessToken == "" || token.RefreshToken == "" || token.Scope != "mcp:read" {
		t.Fatalf("token body: %+v", token)
	}

	// Replaying the code fails with the generic grant error.
	resp = api.post("/oauth/token", map[string]any{
		"grant_type":    "authorization_code",
		"code":          authz.Code,
		"redirect_uri":  testRedirectURI,
		"code_verifier": testVerifier,
		"client_id":     "mcp_public",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replay: expected 400, got %d", resp.StatusCode)
	}
	var replay map[string]any
	decodeBody(t, resp, &replay)
	if replay["error"] != "invalid_grant" {
		t.Fatalf("replay body: %v", replay)
	}
}

func TestAuthorizeRejectsClientCredentialsContext(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/oauth/token", map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     "mcp_backend",
		"client_secret": "s3cret",
	}, nil)
	var token oauth.TokenResponse
	decodeBody(t, resp, &token)

	// A machine token has no user; it cannot authorize on anyone's behalf.
	resp = api.post("/oauth/authorize", map[string]any{
		"client_id":             "mcp_public",
		"redirect_uri":          testRedirectURI,
		"code_challenge":        oauth.ChallengeS256(testVerifier),
		"code_challenge_method": "S256",
	}, api.authHeader(token.AccessToken))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRevokeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("user-1", "mcp:read")

	resp := api.post("/oauth/revoke", map[string]any{
		"token":     token,
		"client_id": "mcp_public",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", resp.StatusCode)
	}

	// The revoked token is refused at the door.
	resp = api.get("/v1/rbac/roles", api.authHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", resp.StatusCode)
	}

	// Unknown tokens still answer 200.
	resp = api.post("/oauth/revoke", map[string]any{
		"token":     "unknown-token",
		"client_id": "mcp_public",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown token revoke: expected 200, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/oauth/token", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
