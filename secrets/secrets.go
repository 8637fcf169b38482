// Package secrets resolves signing secrets by organization and token
// type. A caching reader sits in front of a slower backing source, so
// the hot path of request authentication normally never leaves the
// process. Cache entries are advisory within their TTL, the backing
// source stays authoritative.
package secrets

import "context"

// Reader is able to get a secret for an organization and token type.
type Reader interface {
	// GetSecret returns the secret, whether it was found, and a store
	// error if the lookup itself failed. Not-found is not an error.
	GetSecret(ctx context.Context, org, tokenType string) ([]byte, bool, error)

	// Close should be used on teardown to clean up refresher
	// goroutines. Implementations must tolerate being called on a nil
	// receiver so callers need no check.
	Close()
}

// Source is the backing secret manager behind a caching Reader.
type Source interface {
	GetSecret(ctx context.Context, org, tokenType string) ([]byte, bool, error)
	Close()
}

// Static is a fixed in-memory Source, keyed by "org/tokenType". Used in
// tests and dev mode.
type Static map[string][]byte

func (s Static) GetSecret(_ context.Context, org, tokenType string) ([]byte, bool, error) {
	sec, ok := s[org+"/"+tokenType]
	return sec, ok, nil
}

func (s Static) Close() {}
