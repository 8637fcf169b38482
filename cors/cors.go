package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	allowOriginHeader      = "Access-Control-Allow-Origin"
	allowMethodsHeader     = "Access-Control-Allow-Methods"
	allowHeadersHeader     = "Access-Control-Allow-Headers"
	allowCredentialsHeader = "Access-Control-Allow-Credentials"
	exposeHeadersHeader    = "Access-Control-Expose-Headers"
	maxAgeHeader           = "Access-Control-Max-Age"

	requestMethodHeader  = "Access-Control-Request-Method"
	requestHeadersHeader = "Access-Control-Request-Headers"

	defaultMaxAge = time.Hour
)

// Options configures a Negotiator.
type Options struct {
	// AllowedOrigins is the explicit origin allow-set. Empty means any
	// origin, which is answered with a wildcard unless credentials are
	// allowed.
	AllowedOrigins []string

	// AllowOriginFunc is an optional predicate consulted for origins
	// not present in AllowedOrigins.
	AllowOriginFunc func(origin string) bool

	// AllowCredentials switches to credentialed mode: the response
	// echoes the literal origin, never a wildcard, and only for origins
	// passing the allow-set or predicate.
	AllowCredentials bool

	// AllowedHeaders is the request header allow-list for preflight.
	// Requested headers outside of it are silently not advertised.
	AllowedHeaders []string

	// ExposeHeaders are advertised on actual responses.
	ExposeHeaders []string

	// MaxAge bounds preflight caching, defaults to one hour.
	MaxAge time.Duration
}

// Negotiator builds CORS preflight responses from the route table's
// allowed methods and annotates actual responses. It is immutable after
// construction and safe for concurrent use.
type Negotiator struct {
	allowedOrigins   []string
	allowOriginFunc  func(string) bool
	allowCredentials bool
	allowedHeaders   map[string]string // lower-cased name -> canonical form
	exposeHeaders    string
	maxAge           string
}

// New creates a Negotiator for the given options.
func New(o Options) *Negotiator {
	if o.MaxAge <= 0 {
		o.MaxAge = defaultMaxAge
	}
	allowed := make(map[string]string, len(o.AllowedHeaders))
	for _, h := range o.AllowedHeaders {
		allowed[strings.ToLower(h)] = h
	}
	return &Negotiator{
		allowedOrigins:   o.AllowedOrigins,
		allowOriginFunc:  o.AllowOriginFunc,
		allowCredentials: o.AllowCredentials,
		allowedHeaders:   allowed,
		exposeHeaders:    strings.Join(o.ExposeHeaders, ", "),
		maxAge:           strconv.Itoa(int(o.MaxAge / time.Second)),
	}
}

// Preflight fills h with the response headers for an OPTIONS preflight
// request. allowedMethods is the method set the route table reports for
// the request path. If the browser asked for a specific method that is
// allowed, only that method is advertised; otherwise the full set is,
// so the browser can reject precisely.
func (n *Negotiator) Preflight(req *http.Request, allowedMethods []string, h http.Header) {
	n.setAllowOrigin(req, h)

	requested := req.Header.Get(requestMethodHeader)
	if requested != "" && containsFold(allowedMethods, requested) {
		h.Set(allowMethodsHeader, strings.ToUpper(requested))
	} else {
		h.Set(allowMethodsHeader, strings.Join(allowedMethods, ", "))
	}
	addVary(h, requestMethodHeader)

	if reqHeaders := req.Header.Get(requestHeadersHeader); reqHeaders != "" {
		var granted []string
		for _, name := range strings.Split(reqHeaders, ",") {
			name = strings.TrimSpace(name)
			if canonical, ok := n.allowedHeaders[strings.ToLower(name)]; ok {
				granted = append(granted, canonical)
			}
		}
		if len(granted) > 0 {
			h.Set(allowHeadersHeader, strings.Join(granted, ", "))
		}
		addVary(h, requestHeadersHeader)
	}

	h.Set(maxAgeHeader, n.maxAge)
}

// Decorate annotates an actual (non-preflight) response with the origin
// policy and the configured expose headers.
func (n *Negotiator) Decorate(h http.Header, req *http.Request) {
	n.setAllowOrigin(req, h)
	if n.exposeHeaders != "" {
		h.Set(exposeHeadersHeader, n.exposeHeaders)
	}
}

// setAllowOrigin applies the origin policy. In credentialed mode an
// origin that is not explicitly allowed gets no allow-origin header at
// all: the browser blocks the call without this core emitting an error.
func (n *Negotiator) setAllowOrigin(req *http.Request, h http.Header) {
	if n.allowCredentials {
		origin := req.Header.Get("Origin")
		if origin != "" && n.originAllowed(origin) {
			h.Set(allowOriginHeader, origin)
			h.Set(allowCredentialsHeader, "true")
		}
		addVary(h, "Origin")
		return
	}

	if len(n.allowedOrigins) == 0 && n.allowOriginFunc == nil {
		h.Set(allowOriginHeader, "*")
		return
	}
	origin := req.Header.Get("Origin")
	if origin != "" && n.originAllowed(origin) {
		h.Set(allowOriginHeader, origin)
	}
	addVary(h, "Origin")
}

func (n *Negotiator) originAllowed(origin string) bool {
	for _, o := range n.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return n.allowOriginFunc != nil && n.allowOriginFunc(origin)
}

// addVary appends name to the Vary header, deduplicated
// case-insensitively, preserving any value set by handlers.
func addVary(h http.Header, name string) {
	existing := h.Get("Vary")
	if existing == "" {
		h.Set("Vary", name)
		return
	}
	for _, v := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return
		}
	}
	h.Set("Vary", existing+", "+name)
}

func containsFold(values []string, v string) bool {
	for _, have := range values {
		if strings.EqualFold(have, v) {
			return true
		}
	}
	return false
}
