package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE per RFC 7636. Only the S256 method is supported; OAuth 2.1 forbids
// plain for new deployments and so do we.
const (
	PKCEMethodS256 = "S256"

	minVerifierLength = 43
	maxVerifierLength = 128
)

// ChallengeS256 computes the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func ChallengeS256(codeVerifier string) string {
	sum := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a code verifier against a stored S256 challenge using a
// constant-time comparison. An empty challenge never matches.
func VerifyPKCE(codeVerifier, codeChallenge string) bool {
	if codeChallenge == "" {
		return false
	}
	if len(codeVerifier) < minVerifierLength || len(codeVerifier) > maxVerifierLength {
		return false
	}
	computed := ChallengeS256(codeVerifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) == 1
}
