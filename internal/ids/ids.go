package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys
// and token identifiers. Entropy comes from crypto/rand because token ids must
// not be guessable.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether id is a well-formed identifier produced by New.
func Valid(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}
