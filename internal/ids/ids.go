package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TokenBytes is the amount of entropy carried by every opaque token.
const TokenBytes = 32

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
// Identifiers created later compare greater, so the lowest id is the oldest record.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Token returns 256 bits from crypto/rand encoded as unpadded URL-safe base64.
func Token() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustToken is Token for callers that treat entropy failure as fatal.
func MustToken() string {
	tok, err := Token()
	if err != nil {
		panic(err)
	}
	return tok
}
