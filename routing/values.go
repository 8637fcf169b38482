package routing

import "net/url"

// MaxParams is the largest number of template placeholders any single
// route may capture. The route table is fixed at build time, so exceeding
// it is a programmer error, not an input error.
const MaxParams = 8

type span struct {
	name   string
	start  int
	length int
}

// Values holds the path parameters captured during a single match
// attempt. It stores (name, start, length) spans referencing the matched
// path instead of copying substrings, so resetting and filling it does
// not allocate. A Values is owned by one request and must not be shared.
type Values struct {
	path  string
	n     int
	spans [MaxParams]span
}

// Reset prepares v for a match attempt against path, discarding any
// previously captured parameters.
func (v *Values) Reset(path string) {
	v.path = path
	v.n = 0
}

// Path returns the path the captured spans reference.
func (v *Values) Path() string { return v.path }

// Count returns the number of captured parameters.
func (v *Values) Count() int { return v.n }

func (v *Values) add(name string, start, length int) {
	if v.n == MaxParams {
		panic("routing: too many path parameters, raise MaxParams")
	}
	v.spans[v.n] = span{name: name, start: start, length: length}
	v.n++
}

// Span returns the raw, still URL-escaped slice of the path captured for
// name. This is the zero-allocation accessor for call sites that only
// dispatch on the value and never need the decoded form.
func (v *Values) Span(name string) (string, bool) {
	for i := 0; i < v.n; i++ {
		if v.spans[i].name == name {
			s := v.spans[i]
			return v.path[s.start : s.start+s.length], true
		}
	}
	return "", false
}

// String returns the URL-decoded value captured for name. Decoding
// happens on access, not during matching. A span that does not decode as
// a valid escape sequence is returned raw.
func (v *Values) String(name string) (string, bool) {
	raw, ok := v.Span(name)
	if !ok {
		return "", false
	}
	dec, err := url.PathUnescape(raw)
	if err != nil {
		return raw, true
	}
	return dec, true
}

// Names returns the captured parameter names in capture order.
func (v *Values) Names() []string {
	names := make([]string, v.n)
	for i := 0; i < v.n; i++ {
		names[i] = v.spans[i].name
	}
	return names
}
