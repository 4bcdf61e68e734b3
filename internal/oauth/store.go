package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CodeRecord is a stored authorization code. Single-use: a successful
// exchange atomically marks it used.
type CodeRecord struct {
	ID                  string
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []Scope
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// TokenRecord is the persisted side of an issued token pair. Raw JWTs are
// not stored: the access token is tracked by SHA-256 hash and the refresh
// token by its jti. Rows are never deleted before expiry so revocations stay
// auditable.
type TokenRecord struct {
	ID               string
	AccessTokenHash  string
	RefreshJTI       string // empty for client-credentials tokens
	ClientID         string
	UserID           string // empty for client-credentials tokens
	Scopes           []Scope
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HashAccessToken derives the storage key for an access token.
func HashAccessToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store describes persistence required by the authorization server.
type Store interface {
	Clients(ctx context.Context) ClientStore
	Codes(ctx context.Context) CodeStore
	Tokens(ctx context.Context) TokenStore
}

// ClientStore manages registered OAuth clients.
type ClientStore interface {
	CreateClient(ctx context.Context, c *Client) error
	FindClient(ctx context.Context, clientID string) (*Client, error)
}

// CodeStore manages authorization codes.
type CodeStore interface {
	CreateAuthorizationCode(ctx context.Context, rec *CodeRecord) error
	// ConsumeAuthorizationCode atomically fetches and marks the code used.
	// Concurrent exchanges of the same code see exactly one winner; every
	// other caller gets ErrNotFound, as do expired and already-used codes.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*CodeRecord, error)
}

// TokenStore manages issued token records and revocation state.
type TokenStore interface {
	RecordIssuance(ctx context.Context, rec *TokenRecord) error
	FindByAccessHash(ctx context.Context, hash string) (*TokenRecord, error)
	FindByRefreshJTI(ctx context.Context, jti string) (*TokenRecord, error)
	// Revoke marks the record revoked. Idempotent: revoking twice or
	// revoking an unknown id is not an error.
	Revoke(ctx context.Context, id string) error
	// Rotate revokes the old record and persists the new one atomically so
	// a stolen pre-rotation refresh token cannot race its replacement.
	Rotate(ctx context.Context, oldID string, newRec *TokenRecord) error
}
