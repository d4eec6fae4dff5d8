package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const identityPrefix = "idr_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewIdentityID returns a prefixed, lexicographically sortable identity id.
// Ids are minted here and nowhere else; in particular they are never derived
// from the phone number.
func NewIdentityID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return identityPrefix + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
