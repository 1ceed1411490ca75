package id

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID string. IDs minted by one process sort in creation order, even within the
// same millisecond.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Prefixed returns New with a short type prefix, e.g. "sub_01H...".
func Prefixed(prefix string) string {
	return prefix + "_" + New()
}
