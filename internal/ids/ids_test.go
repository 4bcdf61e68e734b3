package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewProducesDistinctSortedULIDs(t *testing.T) {
	prev := New()
	if _, err := ulid.Parse(prev); err != nil {
		t.Fatalf("Parse(%q): %v", prev, err)
	}
	for i := 0; i < 100; i++ {
		id := New()
		if id <= prev {
			t.Fatalf("ids not strictly increasing: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
}
