package nonce

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// DefaultTTL is how long a marked nonce stays un-reusable. It must
// exceed the authenticator's timestamp window by a comfortable margin,
// so a replayed request is always caught by either check.
const DefaultTTL = 45 * time.Minute

// ErrAlreadyUsed is returned by ValidateAndMark when the nonce was
// marked before within its scope.
var ErrAlreadyUsed = errors.New("nonce already used")

// Store marks nonces as used with insert-if-absent semantics.
//
// ValidateAndMark must be atomic: of any number of concurrent calls with
// the same nonce and scope exactly one succeeds, all others receive
// ErrAlreadyUsed. Any other error is a store failure. The mark expires
// after the store's TTL.
type Store interface {
	ValidateAndMark(ctx context.Context, nonce, scope string, ts time.Time) error

	// Close releases store resources. Safe to call on a nil-receiving
	// implementation.
	Close()
}

// key composes the storage key of a mark. The scope length prefix keeps
// distinct (nonce, scope) pairs on distinct keys even when the scope
// itself contains the separator.
func key(nonce, scope string) string {
	return strconv.Itoa(len(scope)) + ":" + scope + ":" + nonce
}
