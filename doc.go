/*
Package badged implements an HTTP badge-generation service for package
versions and CI test results.

The request admission core does three things for every inbound request:
it resolves the method and path against a small fixed table of path
templates with zero-allocation parameter capture, it negotiates CORS
preflights from the same table so the advertised methods are always
accurate, and on protected routes it validates an HMAC-SHA256 request
signature with timestamp-window and nonce-based replay protection.

Replay protection is backed by a redis ring with atomic insert-if-absent
marking, signing secrets come from a refreshed directory source behind a
TTL cache. Both have in-memory stand-ins for dev mode and tests.

Use the badged command to run the service:

	badged -address :9090 -redis-addrs redis1:6379,redis2:6379 -secrets-dir /etc/badged/secrets

or start it from Go:

	badged.Run(badged.Options{Address: ":9090", DevMode: true})
*/
package badged
