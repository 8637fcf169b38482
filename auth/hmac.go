package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badgeworks/badged/nonce"
	"github.com/badgeworks/badged/secrets"
)

// Header names of the signed-request protocol.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

const (
	signaturePrefix = "sha256="

	// maxStale rejects requests signed too long ago.
	maxStale = 5 * time.Minute
	// maxSkew tolerates future-dated timestamps up to reasonable
	// clock drift.
	maxSkew = time.Minute

	// DefaultTokenType is the token type secrets are resolved under.
	DefaultTokenType = "hmac"
)

// The closed set of validation failures. Everything else coming out of
// Validate is a store or backend failure.
var (
	ErrMissingAuthHeaders = errors.New("missing authentication headers")
	ErrInvalidTimestamp   = errors.New("invalid or out-of-window timestamp")
	ErrNonceAlreadyUsed   = errors.New("nonce already used")
	ErrSecretNotFound     = errors.New("signing secret not found")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// Request carries everything Validate needs: the three auth headers,
// the route-derived scope, the organization owning the signing secret,
// and the raw body the signature covers. It is ephemeral, built per
// request and discarded after validation.
type Request struct {
	Signature string
	Timestamp string
	Nonce     string
	Scope     string
	Org       string
	Body      []byte
}

// Grant marks a request as authenticated.
type Grant struct {
	Scope  string
	Issued time.Time
}

// Options configures an Authenticator.
type Options struct {
	Secrets secrets.Reader
	Nonces  nonce.Store

	// TokenType namespaces secret lookups, defaults to
	// DefaultTokenType.
	TokenType string

	// Now is the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Authenticator validates HMAC-SHA256 signed requests with replay
// protection. It is stateless per call and safe for concurrent use, all
// shared state lives in the nonce store and the secrets reader.
type Authenticator struct {
	secrets   secrets.Reader
	nonces    nonce.Store
	tokenType string
	now       func() time.Time
}

// New creates an Authenticator.
func New(o Options) *Authenticator {
	if o.TokenType == "" {
		o.TokenType = DefaultTokenType
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Authenticator{
		secrets:   o.Secrets,
		nonces:    o.Nonces,
		tokenType: o.TokenType,
		now:       o.Now,
	}
}

// Validate runs the admission checks in fixed order: header presence,
// timestamp format, timestamp window, nonce check-and-mark, secret
// lookup, signature comparison. The ordering is deliberate, cheapest and
// attacker-uncontrolled checks run first, so a flood of garbage requests
// never reaches the nonce store or the secret source.
func (a *Authenticator) Validate(ctx context.Context, req *Request) (*Grant, error) {
	if req.Signature == "" || req.Timestamp == "" || req.Nonce == "" {
		return nil, ErrMissingAuthHeaders
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	now := a.now()
	if now.Sub(ts) > maxStale || ts.Sub(now) > maxSkew {
		return nil, ErrInvalidTimestamp
	}

	if err := a.nonces.ValidateAndMark(ctx, req.Nonce, req.Scope, ts); err != nil {
		if errors.Is(err, nonce.ErrAlreadyUsed) {
			return nil, ErrNonceAlreadyUsed
		}
		return nil, err
	}

	secret, found, err := a.secrets.GetSecret(ctx, req.Org, a.tokenType)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSecretNotFound
	}

	if err := verify(secret, req.Body, req.Signature); err != nil {
		return nil, err
	}

	return &Grant{Scope: req.Scope, Issued: ts}, nil
}

// verify checks a "sha256=<hex>" signature over body in constant time.
func verify(secret, body []byte, signature string) error {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}
	provided, err := hex.DecodeString(signature[len(signaturePrefix):])
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, provided) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
