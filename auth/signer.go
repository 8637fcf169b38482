package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Signature computes the "sha256=<hex>" signature of body under secret.
func Signature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Signer produces the signed-request headers on the client side. CI
// integrations and the tests use it, the server never does.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer for secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the signature, timestamp and a fresh nonce for body.
func (s *Signer) Sign(body []byte) (signature, timestamp, n string) {
	return Signature(s.secret, body),
		s.now().UTC().Format(time.RFC3339),
		uuid.NewString()
}

// SignRequest sets the X-Signature, X-Timestamp and X-Nonce headers on
// req for the given body.
func (s *Signer) SignRequest(req *http.Request, body []byte) {
	signature, timestamp, n := s.Sign(body)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderNonce, n)
}
