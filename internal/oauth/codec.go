package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes are contract constants, not per-request configuration.
const (
	AccessTokenTTL       = 5 * time.Minute
	RefreshTokenTTL      = 30 * 24 * time.Hour
	AuthorizationCodeTTL = 10 * time.Minute
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims are the JWT claims carried by an access token. Subject is
// empty for client-credentials tokens.
type AccessClaims struct {
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims are the JWT claims carried by a refresh token. The jti
// (RegisteredClaims.ID) is the revocation handle.
type RefreshClaims struct {
	ClientID  string `json:"client_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the service's JWTs with HMAC-SHA256. It is
// stateless; revocation is the store's concern.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecIssuer overrides the issuer claim baked into every token.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if s := strings.TrimSpace(issuer); s != "" {
			c.issuer = s
		}
	}
}

// WithCodecAudience overrides the audience claim.
func WithCodecAudience(aud string) CodecOption {
	return func(c *Codec) {
		if s := strings.TrimSpace(aud); s != "" {
			c.audience = s
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. The signing secret is required.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("oauth: signing secret is required")
	}
	c := &Codec{
		secret:   secret,
		issuer:   "moss",
		audience: "mcp-server",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SignAccessToken mints an access token for the given subject and client.
// userID may be empty (client-credentials flow).
func (c *Codec) SignAccessToken(userID, clientID string, scopes []Scope) (string, time.Time, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", time.Time{}, errors.New("oauth: client id is required")
	}
	now := c.now().UTC()
	exp := now.Add(AccessTokenTTL)
	claims := AccessClaims{
		ClientID:  clientID,
		Scopes:    StringsFromScopes(scopes),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// SignRefreshToken mints a refresh token and returns its jti alongside.
func (c *Codec) SignRefreshToken(userID, clientID string) (token, jti string, exp time.Time, err error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", "", time.Time{}, errors.New("oauth: client id is required")
	}
	now := c.now().UTC()
	exp = now.Add(RefreshTokenTTL)
	jti = uuid.NewString()
	claims := RefreshClaims{
		ClientID:  clientID,
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, jti, exp, nil
}

// VerifyAccessToken verifies signature, issuer, audience, expiry and token
// type. It never returns an error: callers treat invalid and expired
// uniformly as re-authentication required.
func (c *Codec) VerifyAccessToken(token string) (*AccessClaims, bool) {
	claims, err := c.verifyAccessToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// VerifyRefreshToken is the refresh-token counterpart of VerifyAccessToken.
func (c *Codec) VerifyRefreshToken(token string) (*RefreshClaims, bool) {
	claims, err := c.verifyRefreshToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// verifyAccessToken distinguishes expiry from other failures for callers
// that surface distinct errors (bearer validation).
func (c *Codec) verifyAccessToken(token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &AccessClaims{}, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.TokenType != tokenTypeAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) verifyRefreshToken(token string) (*RefreshClaims, error) {
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &RefreshClaims{}, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid || claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	return c.secret, nil
}
