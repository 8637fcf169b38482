/*
Package dispatch wires routing, CORS negotiation and request
authentication into a single http.Handler.

Every inbound request is resolved against the fixed route table first.
OPTIONS requests are answered as CORS preflights from the table's own
allowed-methods report and never reach a handler. Protected routes run
HMAC validation on the raw body before their handler. Every response,
including errors, is annotated with the CORS origin policy.
*/
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/badgeworks/badged/auth"
	"github.com/badgeworks/badged/cors"
	"github.com/badgeworks/badged/metrics"
	"github.com/badgeworks/badged/routing"
)

const (
	// ownerParam is the route parameter naming the organization a
	// protected route's signing secret belongs to.
	ownerParam = "owner"

	defaultMaxBodyBytes = 1 << 20
)

// Options to create a Dispatcher.
type Options struct {
	Resolver *routing.Resolver
	Cors     *cors.Negotiator

	// Auth validates protected routes. Required when the table has
	// protected descriptors.
	Auth *auth.Authenticator

	Metrics metrics.Metrics

	// Timeout bounds the whole pipeline of one request. Keep it
	// slightly below any upstream deadline so an error response can
	// still be composed. Zero disables the deadline.
	Timeout time.Duration

	// MaxBodyBytes caps request bodies read for signature validation,
	// defaults to 1MiB.
	MaxBodyBytes int64
}

// Dispatcher is the request-handling entry point of the service.
type Dispatcher struct {
	resolver     *routing.Resolver
	cors         *cors.Negotiator
	auth         *auth.Authenticator
	metrics      metrics.Metrics
	timeout      time.Duration
	maxBodyBytes int64
}

// New creates a Dispatcher.
func New(o Options) *Dispatcher {
	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.Cors == nil {
		o.Cors = cors.New(cors.Options{})
	}
	return &Dispatcher{
		resolver:     o.Resolver,
		cors:         o.Cors,
		auth:         o.Auth,
		metrics:      o.Metrics,
		timeout:      o.Timeout,
		maxBodyBytes: o.MaxBodyBytes,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Handler panics must not take the process down or leak detail to
	// the caller.
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("panic while serving %s %s: %v", r.Method, r.URL.Path, p)
			d.serveError(w, r, http.StatusInternalServerError, "internal_error", "")
		}
	}()

	// The escaped form keeps %2F and friends intact, so captured spans
	// stay raw until a handler asks for the decoded value.
	path := r.URL.EscapedPath()

	ctx := r.Context()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	r = r.WithContext(ctx)

	if r.Method == http.MethodOptions {
		d.servePreflight(w, r, path, start)
		return
	}

	var params routing.Values
	route, ok := d.resolver.Resolve(r.Method, path, &params)
	d.metrics.MeasureRouteLookup(start)
	if !ok {
		d.serveNoMatch(w, r, path, start)
		return
	}

	if route.Protected {
		if !d.serveAuth(w, r, route, &params, start) {
			return
		}
	}

	cw := &codeCapturingWriter{ResponseWriter: w, decorate: func(h http.Header) {
		d.cors.Decorate(h, r)
	}}
	route.Handler.ServeRoute(cw, r, &params)
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	d.finish(r, route.Name, cw.code, start)
}

// servePreflight answers OPTIONS requests from the route table without
// invoking any handler.
func (d *Dispatcher) servePreflight(w http.ResponseWriter, r *http.Request, path string, start time.Time) {
	allowed := d.resolver.AllowedMethods(path)
	d.metrics.MeasureRouteLookup(start)
	if len(allowed) == 1 { // only OPTIONS, so no route matches the path
		d.serveError(w, r, http.StatusNotFound, "not_found", "")
		d.finish(r, "preflight", http.StatusNotFound, start)
		return
	}
	d.cors.Preflight(r, allowed, w.Header())
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.WriteHeader(http.StatusNoContent)
	d.finish(r, "preflight", http.StatusNoContent, start)
}

// serveNoMatch distinguishes a path known under another method (405 with
// Allow) from a fully unknown path (404).
func (d *Dispatcher) serveNoMatch(w http.ResponseWriter, r *http.Request, path string, start time.Time) {
	d.metrics.IncNoMatch(r.Method)
	allowed := d.resolver.AllowedMethods(path)
	if len(allowed) > 1 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		d.serveError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "")
		d.finish(r, "nomatch", http.StatusMethodNotAllowed, start)
		return
	}
	d.serveError(w, r, http.StatusNotFound, "not_found", "")
	d.finish(r, "nomatch", http.StatusNotFound, start)
}

// serveAuth validates the request signature and reports whether the
// handler may run. On failure it has already written the response.
func (d *Dispatcher) serveAuth(w http.ResponseWriter, r *http.Request, route *routing.Descriptor, params *routing.Values, start time.Time) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, d.maxBodyBytes+1))
	if err != nil {
		d.serveError(w, r, http.StatusInternalServerError, "internal_error", "")
		d.finish(r, route.Name, http.StatusInternalServerError, start)
		return false
	}
	if int64(len(body)) > d.maxBodyBytes {
		d.serveError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "")
		d.finish(r, route.Name, http.StatusRequestEntityTooLarge, start)
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	org, _ := params.String(ownerParam)
	_, err = d.auth.Validate(r.Context(), &auth.Request{
		Signature: r.Header.Get(auth.HeaderSignature),
		Timestamp: r.Header.Get(auth.HeaderTimestamp),
		Nonce:     r.Header.Get(auth.HeaderNonce),
		Scope:     scopeOf(params),
		Org:       org,
		Body:      body,
	})
	if err == nil {
		return true
	}

	status, code := authFailureResponse(err)
	d.metrics.IncAuthFailure(code)
	if status == http.StatusInternalServerError {
		log.Errorf("authentication store failure on %s: %v", route.Name, err)
	} else {
		log.Debugf("rejected request on %s: %v", route.Name, err)
	}
	field := ""
	if errors.Is(err, auth.ErrInvalidTimestamp) {
		field = auth.HeaderTimestamp
	}
	d.serveError(w, r, status, code, field)
	d.finish(r, route.Name, status, start)
	return false
}

// authFailureResponse maps the closed failure set to HTTP. Signature,
// missing-header and unknown-secret failures are deliberately collapsed
// into one indistinguishable 401, so a probing client cannot learn which
// check failed. A replayed nonce is caller-correctable and gets a 400.
func authFailureResponse(err error) (status int, code string) {
	switch {
	case errors.Is(err, auth.ErrInvalidTimestamp):
		return http.StatusBadRequest, "invalid_timestamp"
	case errors.Is(err, auth.ErrNonceAlreadyUsed):
		return http.StatusBadRequest, "nonce_already_used"
	case errors.Is(err, auth.ErrMissingAuthHeaders),
		errors.Is(err, auth.ErrSecretNotFound),
		errors.Is(err, auth.ErrInvalidSignature):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// scopeOf joins the captured parameters in capture order, which for
// protected routes yields the owner/repo/platform/branch composite the
// nonce store keys on. The raw escaped spans are used: a span cannot
// contain the separator, so distinct parameter tuples never join to the
// same scope.
func scopeOf(params *routing.Values) string {
	var b strings.Builder
	for i, name := range params.Names() {
		if i > 0 {
			b.WriteByte('/')
		}
		v, _ := params.Span(name)
		b.WriteString(v)
	}
	return b.String()
}

func (d *Dispatcher) serveError(w http.ResponseWriter, r *http.Request, status int, code, field string) {
	d.cors.Decorate(w.Header(), r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"code": code}
	if field != "" {
		resp["field"] = field
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debugf("failed to write error response: %v", err)
	}
}

func (d *Dispatcher) finish(r *http.Request, route string, code int, start time.Time) {
	d.metrics.MeasureServe(route, r.Method, code, start)
	log.Debugf("%s %s -> %d (%s) in %v", r.Method, r.URL.Path, code, route, time.Since(start))
}

// codeCapturingWriter records the response code for metrics and applies
// the CORS annotation right before headers are flushed.
type codeCapturingWriter struct {
	http.ResponseWriter
	decorate    func(http.Header)
	code        int
	wroteHeader bool
}

func (w *codeCapturingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.decorate(w.Header())
	w.code = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *codeCapturingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}
