package oauth

import "strings"

// Scope is a named capability attached to a token. The vocabulary is closed:
// anything outside the constants below is rejected at validation time.
type Scope string

const (
	ScopeRead      Scope = "mcp:read"
	ScopeWrite     Scope = "mcp:write"
	ScopeTools     Scope = "mcp:tools"
	ScopeResources Scope = "mcp:resources"
	ScopePrompts   Scope = "mcp:prompts"
)

var allScopes = map[Scope]struct{}{
	ScopeRead:      {},
	ScopeWrite:     {},
	ScopeTools:     {},
	ScopeResources: {},
	ScopePrompts:   {},
}

// Valid reports whether the scope belongs to the fixed vocabulary.
func (s Scope) Valid() bool {
	_, ok := allScopes[s]
	return ok
}

// Scopes returns every scope in the vocabulary.
func Scopes() []Scope {
	return []Scope{ScopeRead, ScopeWrite, ScopeTools, ScopeResources, ScopePrompts}
}

// ParseScopes splits a space-separated scope string into its raw members.
// No vocabulary check happens here; use ValidateScopes for that.
func ParseScopes(raw string) []string {
	return strings.Fields(raw)
}

// FormatScopes joins scopes into the space-separated wire form.
func FormatScopes(scopes []Scope) string {
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}

// ValidateScopes filters requested scopes against an allow-list. Scopes
// outside the vocabulary or outside the allow-list are reported in rejected,
// never silently passed through or escalated.
func ValidateScopes(requested []string, allowed []Scope) (granted []Scope, rejected []string) {
	allowSet := make(map[Scope]struct{}, len(allowed))
	for _, s := range allowed {
		allowSet[s] = struct{}{}
	}
	seen := make(map[Scope]struct{}, len(requested))
	for _, raw := range requested {
		s := Scope(raw)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if !s.Valid() {
			rejected = append(rejected, raw)
			continue
		}
		if _, ok := allowSet[s]; !ok {
			rejected = append(rejected, raw)
			continue
		}
		granted = append(granted, s)
	}
	return granted, rejected
}

// ScopesFromStrings converts stored string scopes back to the typed form,
// dropping anything outside the vocabulary.
func ScopesFromStrings(raw []string) []Scope {
	var out []Scope
	for _, r := range raw {
		s := Scope(r)
		if s.Valid() {
			out = append(out, s)
		}
	}
	return out
}

// StringsFromScopes converts typed scopes to plain strings for storage.
func StringsFromScopes(scopes []Scope) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, string(s))
	}
	return out
}
