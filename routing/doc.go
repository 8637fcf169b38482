/*
Package routing resolves HTTP method and path combinations against a
small, fixed route table.

Routes are described by patterns: either an exact path or a template
with {name} placeholders, each matching one non-empty path segment.
Matching walks the path by segment boundaries and records captured
parameters as index spans into the original string, so the hot path does
not allocate per request. Parameter values stay URL-escaped until a call
site asks for the decoded form.

The resolver scans descriptors in registration order and returns the
first match, which keeps precedence between overlapping templates
explicit in the table itself. It also reports the full method set
matching a path, used for CORS preflight negotiation and Allow headers.
*/
package routing
