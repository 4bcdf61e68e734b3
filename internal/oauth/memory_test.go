package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreConsumeCodeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &CodeRecord{
		Code:      "abc",
		ClientID:  "mcp_x",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := store.CreateAuthorizationCode(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.ConsumeAuthorizationCode(ctx, "abc")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !got.Used {
		t.Fatalf("consumed record not marked used")
	}
	if _, err := store.ConsumeAuthorizationCode(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreConsumeCodeConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.CreateAuthorizationCode(ctx, &CodeRecord{
		Code:      "race",
		ClientID:  "mcp_x",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Minute),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeAuthorizationCode(ctx, "race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("want exactly one winner, got %d", wins)
	}
}

func TestMemoryStoreConsumeExpiredCode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	store.SetClock(func() time.Time { return base })
	if err := store.CreateAuthorizationCode(ctx, &CodeRecord{
		Code:      "old",
		ClientID:  "mcp_x",
		UserID:    "user-1",
		ExpiresAt: base.Add(AuthorizationCodeTTL),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.SetClock(func() time.Time { return base.Add(AuthorizationCodeTTL + time.Second) })
	if _, err := store.ConsumeAuthorizationCode(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired code: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &TokenRecord{AccessTokenHash: "h1", ClientID: "mcp_x"}
	if err := store.RecordIssuance(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Revoke(ctx, rec.ID); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	if err := store.Revoke(ctx, "missing"); err != nil {
		t.Fatalf("revoking unknown id: %v", err)
	}
	got, err := store.FindByAccessHash(ctx, "h1")
	if err != nil {
		t.Fatalf("revoked record must stay findable: %v", err)
	}
	if !got.Revoked {
		t.Fatalf("record not revoked")
	}
}

func TestMemoryStoreRotate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	old := &TokenRecord{AccessTokenHash: "h1", RefreshJTI: "jti-1", ClientID: "mcp_x", UserID: "user-1"}
	if err := store.RecordIssuance(ctx, old); err != nil {
		t.Fatalf("record: %v", err)
	}
	newRec := &TokenRecord{AccessTokenHash: "h2", RefreshJTI: "jti-2", ClientID: "mcp_x", UserID: "user-1"}
	if err := store.Rotate(ctx, old.ID, newRec); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	rotated, err := store.FindByRefreshJTI(ctx, "jti-1")
	if err != nil {
		t.Fatalf("find old: %v", err)
	}
	if !rotated.Revoked {
		t.Fatalf("old record must be revoked by rotation")
	}
	fresh, err := store.FindByRefreshJTI(ctx, "jti-2")
	if err != nil {
		t.Fatalf("find new: %v", err)
	}
	if fresh.Revoked {
		t.Fatalf("new record must not be revoked")
	}
}
