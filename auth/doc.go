/*
Package auth implements the HMAC-SHA256 request authentication protocol
of the badge service.

Clients sign the raw request body with a shared per-organization secret
and send three headers:

	X-Signature: sha256=<hex-encoded HMAC-SHA256 of the body>
	X-Timestamp: <RFC 3339 signing time>
	X-Nonce:     <opaque one-time token>

The server accepts a request only when the timestamp is inside a small
window around its own clock, the nonce was never seen before for the
request's scope, and the signature matches in constant time. The nonce
mark outlives the timestamp window, so every replay is caught by one of
the two checks.
*/
package auth
