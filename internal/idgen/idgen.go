// Package idgen implements the ID-generator collaborator: a source of
// monotonically sortable unique strings, used for operation ids, batch
// ids, snapshot ids, cursor broadcast ids, and WebSocket session ids.
package idgen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Generator produces a new unique, sortable-by-generation-order string
// on each call.
type Generator interface {
	NewID() string
}

// UUIDv7Generator generates RFC 9562 UUIDv7 strings: the first 48 bits
// are a millisecond timestamp, so ids sort in generation order even
// across processes — exactly the "monotonically sortable unique
// strings" contract this collaborator needs, backed by a real library
// instead of hand-rolled timestamp concatenation.
type UUIDv7Generator struct{}

func (UUIDv7Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the backing random source errors;
		// fall back to a v4 rather than panic the caller.
		return uuid.NewString()
	}
	return id.String()
}

// SessionIDGenerator produces ids in the exact
// "{unixMillis}-{9-char-base36-random}" shape used for WebSocket
// session ids, grounded in the same scheme the corpus's gateway
// assigns connection ids.
type SessionIDGenerator struct{}

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

func (SessionIDGenerator) NewID() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36Chars[rand.Intn(len(base36Chars))]
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), string(suffix))
}
