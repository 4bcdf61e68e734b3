// Package ids generates ULIDs for storage keys. ULIDs sort by creation time,
// which keeps index pages warm and makes ids safe to expose in URLs.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID. The monotonic reader needs external locking, so
// all callers funnel through one mutex.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
