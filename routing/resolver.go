package routing

import (
	"net/http"
	"strings"
)

// Handler serves a matched route. params holds the path parameters
// captured for the route's template and is only valid for the duration
// of the call.
type Handler interface {
	ServeRoute(w http.ResponseWriter, r *http.Request, params *Values)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(http.ResponseWriter, *http.Request, *Values)

func (f HandlerFunc) ServeRoute(w http.ResponseWriter, r *http.Request, params *Values) {
	f(w, r, params)
}

// Descriptor is one entry of the fixed route table, binding a method and
// path pattern to a handler. Descriptors are constructed once at process
// start and never mutated.
type Descriptor struct {
	// Name identifies the route in logs and metrics.
	Name string

	// Method is the HTTP method the route serves. HEAD requests are
	// served by GET routes.
	Method string

	// Pattern matches the request path.
	Pattern Pattern

	// Handler serves matched requests.
	Handler Handler

	// Protected routes require a valid HMAC signature before the
	// handler runs.
	Protected bool
}

// Resolver resolves a method and path to the first matching descriptor
// of an ordered, immutable route table. It is safe for unbounded
// concurrent use, per-match state lives in the caller's Values.
type Resolver struct {
	routes []*Descriptor
}

// NewResolver creates a Resolver over routes. Order is significant: the
// first matching descriptor wins, so register more specific routes
// before more general ones.
func NewResolver(routes ...*Descriptor) *Resolver {
	return &Resolver{routes: routes}
}

// Routes returns the route table in registration order.
func (rs *Resolver) Routes() []*Descriptor { return rs.routes }

// Resolve returns the first descriptor whose method and pattern match,
// with the captured parameters filled into values. HEAD resolves as GET.
// No match is a normal outcome, reported by the second return value.
func (rs *Resolver) Resolve(method, path string, values *Values) (*Descriptor, bool) {
	method = normalizeMethod(method)
	for _, d := range rs.routes {
		if d.Method != method {
			continue
		}
		values.Reset(path)
		if d.Pattern.Match(path, values) {
			return d, true
		}
	}
	return nil, false
}

// AllowedMethods returns the methods of every descriptor whose pattern
// matches path, regardless of the requested method. OPTIONS is always
// included, and HEAD whenever GET is. The result feeds CORS preflight
// responses and Allow headers on 405s.
func (rs *Resolver) AllowedMethods(path string) []string {
	var (
		methods []string
		scratch Values
	)
	for _, d := range rs.routes {
		scratch.Reset(path)
		if !d.Pattern.Match(path, &scratch) {
			continue
		}
		if !containsMethod(methods, d.Method) {
			methods = append(methods, d.Method)
		}
	}
	if containsMethod(methods, "GET") {
		methods = append(methods, "HEAD")
	}
	return append(methods, "OPTIONS")
}

func normalizeMethod(method string) string {
	m := strings.ToUpper(method)
	if m == "HEAD" {
		return "GET"
	}
	return m
}

func containsMethod(methods []string, m string) bool {
	for _, have := range methods {
		if have == m {
			return true
		}
	}
	return false
}
