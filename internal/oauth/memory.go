package oauth

import (
	"context"
	"sync"
	"time"

	"moss.dev/internal/ids"
)

// MemoryStore is an in-memory Store used by tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*Client      // by client_id
	codes   map[string]*CodeRecord  // by code
	tokens  map[string]*TokenRecord // by record id
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*Client),
		codes:   make(map[string]*CodeRecord),
		tokens:  make(map[string]*TokenRecord),
		now:     time.Now,
	}
}

// SetClock overrides the expiry clock. Test use only.
func (s *MemoryStore) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.now = fn
	}
}

func (s *MemoryStore) Clients(context.Context) ClientStore { return s }
func (s *MemoryStore) Codes(context.Context) CodeStore     { return s }
func (s *MemoryStore) Tokens(context.Context) TokenStore   { return s }

func (s *MemoryStore) CreateClient(_ context.Context, c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	if _, exists := s.clients[c.ClientID]; exists {
		return ErrAlreadyExists
	}
	cp := *c
	s.clients[c.ClientID] = &cp
	return nil
}

func (s *MemoryStore) FindClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CreateAuthorizationCode(_ context.Context, rec *CodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if _, exists := s.codes[rec.Code]; exists {
		return ErrAlreadyExists
	}
	cp := *rec
	s.codes[rec.Code] = &cp
	return nil
}

func (s *MemoryStore) ConsumeAuthorizationCode(_ context.Context, code string) (*CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.codes[code]
	if !ok || rec.Used || s.now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	rec.Used = true
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) RecordIssuance(_ context.Context, rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(rec)
	return nil
}

func (s *MemoryStore) recordLocked(rec *TokenRecord) {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	cp := *rec
	s.tokens[rec.ID] = &cp
}

func (s *MemoryStore) FindByAccessHash(_ context.Context, hash string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.tokens {
		if rec.AccessTokenHash == hash {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByRefreshJTI(_ context.Context, jti string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jti == "" {
		return nil, ErrNotFound
	}
	for _, rec := range s.tokens {
		if rec.RefreshJTI == jti {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tokens[id]; ok && !rec.Revoked {
		rec.Revoked = true
		rec.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, oldID string, newRec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tokens[oldID]; ok {
		rec.Revoked = true
		rec.UpdatedAt = s.now().UTC()
	}
	s.recordLocked(newRec)
	return nil
}
