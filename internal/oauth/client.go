package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ClientType distinguishes clients that can keep a secret from those that
// cannot. Public clients must use PKCE on the code flow and never present a
// secret.
type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)

// Client is a registered OAuth client.
type Client struct {
	ID            string
	ClientID      string
	SecretHash    string // bcrypt; empty for public clients
	Name          string
	RedirectURIs  []string
	AllowedScopes []Scope
	Type          ClientType
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AllowsRedirect reports whether uri exactly matches a registered redirect URI.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// Registry authenticates clients and filters their scope requests.
type Registry struct {
	clients ClientStore
}

// NewRegistry wraps a client store.
func NewRegistry(clients ClientStore) *Registry {
	return &Registry{clients: clients}
}

// Authenticate verifies client identity. Confidential clients must present a
// secret matching the stored bcrypt hash; public clients must not present
// one. Every failure is ErrAuthenticationFailed so external callers cannot
// tell a missing client from a bad secret.
func (r *Registry) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, ErrAuthenticationFailed
	}
	client, err := r.clients.FindClient(ctx, clientID)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if !client.Active {
		return nil, ErrAuthenticationFailed
	}
	switch client.Type {
	case ClientConfidential:
		if clientSecret == "" {
			return nil, ErrAuthenticationFailed
		}
		if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)) != nil {
			return nil, ErrAuthenticationFailed
		}
	case ClientPublic:
		if clientSecret != "" {
			return nil, ErrAuthenticationFailed
		}
	default:
		return nil, ErrAuthenticationFailed
	}
	return client, nil
}

// ValidateScopes filters a requested scope list against the client's
// allow-list. An empty request grants the full allow-list.
func (r *Registry) ValidateScopes(client *Client, requested []string) (granted []Scope, rejected []string) {
	if len(requested) == 0 {
		granted = make([]Scope, len(client.AllowedScopes))
		copy(granted, client.AllowedScopes)
		return granted, nil
	}
	return ValidateScopes(requested, client.AllowedScopes)
}

// GenerateClientID returns an opaque client identifier.
func GenerateClientID() string {
	return "mcp_" + randomToken(18)
}

// GenerateClientSecret returns a high-entropy client secret. Only the bcrypt
// hash is ever stored.
func GenerateClientSecret() string {
	return randomToken(36)
}

// HashClientSecret hashes a client secret for storage.
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: client secret is empty", ErrInvalidRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process cannot do its job at all.
		panic(fmt.Sprintf("oauth: read random: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
