package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/badgeworks/badged/auth"
	"github.com/badgeworks/badged/cors"
	"github.com/badgeworks/badged/nonce"
	"github.com/badgeworks/badged/routing"
	"github.com/badgeworks/badged/secrets"
)

const testSecret = "s3cr3t"

type countingNonceStore struct {
	inner nonce.Store
	calls int
}

func (c *countingNonceStore) ValidateAndMark(ctx context.Context, n, scope string, ts time.Time) error {
	c.calls++
	return c.inner.ValidateAndMark(ctx, n, scope, ts)
}

func (c *countingNonceStore) Close() { c.inner.Close() }

func echoRoute(name string) routing.Handler {
	return routing.HandlerFunc(func(w http.ResponseWriter, r *http.Request, params *routing.Values) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"route":%q`, name)
		for _, p := range params.Names() {
			raw, _ := params.Span(p)
			dec, _ := params.String(p)
			fmt.Fprintf(w, ",%q:%q,%q:%q", p+".raw", raw, p+".dec", dec)
		}
		io.WriteString(w, "}")
	})
}

func newTestDispatcher(t *testing.T, now time.Time) (*Dispatcher, *countingNonceStore) {
	t.Helper()
	nonces := &countingNonceStore{inner: nonce.NewInMemoryStore(0)}
	t.Cleanup(nonces.Close)

	resolver := routing.NewResolver(
		&routing.Descriptor{Name: "health", Method: "GET", Pattern: routing.Exact("/health"), Handler: echoRoute("health")},
		&routing.Descriptor{Name: "packageBadge", Method: "GET", Pattern: routing.MustTemplate("/badges/packages/{provider}/{package}"), Handler: echoRoute("packageBadge")},
		&routing.Descriptor{Name: "scopedPackageBadge", Method: "GET", Pattern: routing.MustTemplate("/badges/packages/{provider}/{org}/{package}"), Handler: echoRoute("scopedPackageBadge")},
		&routing.Descriptor{Name: "testBadge", Method: "GET", Pattern: routing.MustTemplate("/badges/tests/{platform}/{owner}/{repo}/{branch}"), Handler: echoRoute("testBadge")},
		&routing.Descriptor{Name: "ingestResults", Method: "POST", Pattern: routing.MustTemplate("/tests/results/{owner}/{repo}/{platform}/{branch}"), Handler: echoRoute("ingestResults"), Protected: true},
	)

	d := New(Options{
		Resolver: resolver,
		Cors: cors.New(cors.Options{
			AllowedHeaders: []string{"Content-Type", "X-Signature", "X-Timestamp", "X-Nonce"},
		}),
		Auth: auth.New(auth.Options{
			Secrets: secrets.NewCachingReader(secrets.Static{"acme/hmac": []byte(testSecret)}, time.Minute),
			Nonces:  nonces,
			Now:     func() time.Time { return now },
		}),
	})
	return d, nonces
}

func get(d *Dispatcher, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestDispatchPackageBadge(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	w := get(d, "/badges/packages/nuget/Newtonsoft.Json")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "packageBadge", gjson.Get(body, "route").String(),
		"the two-parameter template registered first must win")
	assert.Equal(t, "nuget", gjson.Get(body, `provider\.dec`).String())
	assert.Equal(t, "Newtonsoft.Json", gjson.Get(body, `package\.dec`).String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestDispatchEscapedBranch(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	w := get(d, "/badges/tests/linux/acme/widgets/feature%2Fx")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "testBadge", gjson.Get(body, "route").String())
	assert.Equal(t, "feature%2Fx", gjson.Get(body, `branch\.raw`).String())
	assert.Equal(t, "feature/x", gjson.Get(body, `branch\.dec`).String())
}

func TestDispatchHeadServedByGet(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest("HEAD", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDispatchNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	w := get(d, "/no/such/path")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", gjson.Get(w.Body.String(), "code").String())
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest("DELETE", "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Allow"))
}

func TestDispatchPreflight(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())

	r := httptest.NewRequest("OPTIONS", "/health", nil)
	r.Header.Set("Origin", "https://app.example.org")
	r.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET", w.Header().Get("Access-Control-Allow-Methods"),
		"a requested allowed method must be disclosed alone")
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))

	// Without a requested method the full set is advertised.
	r = httptest.NewRequest("OPTIONS", "/health", nil)
	r.Header.Set("Origin", "https://app.example.org")
	w = httptest.NewRecorder()
	d.ServeHTTP(w, r)
	assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestDispatchPreflightUnknownPath(t *testing.T) {
	d, _ := newTestDispatcher(t, time.Now())
	r := httptest.NewRequest("OPTIONS", "/no/such/path", nil)
	r.Header.Set("Origin", "https://app.example.org")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func signedPost(t *testing.T, path, body string, now time.Time, n string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.Header.Set(auth.HeaderSignature, auth.Signature([]byte(testSecret), []byte(body)))
	r.Header.Set(auth.HeaderTimestamp, now.UTC().Format(time.RFC3339))
	r.Header.Set(auth.HeaderNonce, n)
	return r
}

func TestDispatchProtectedRoute(t *testing.T) {
	now := time.Now()
	d, _ := newTestDispatcher(t, now)
	const path = "/tests/results/acme/widgets/linux/main"
	const body = `{"passed":12,"failed":1}`

	// Fresh nonce, timestamp 10 seconds old: accepted.
	w := httptest.NewRecorder()
	d.ServeHTTP(w, signedPost(t, path, body, now.Add(-10*time.Second), "n1"))
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "ingestResults", gjson.Get(w.Body.String(), "route").String())

	// Identical replay: rejected by the nonce mark.
	w = httptest.NewRecorder()
	d.ServeHTTP(w, signedPost(t, path, body, now.Add(-10*time.Second), "n1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "nonce_already_used", gjson.Get(w.Body.String(), "code").String())
}

// Two paths whose decoded parameters would join to the same composite
// must still get independent replay protection.
func TestDispatchEscapedScopesAreDistinct(t *testing.T) {
	now := time.Now()
	d, _ := newTestDispatcher(t, now)
	const body = `{"passed":1,"failed":0}`

	w := httptest.NewRecorder()
	d.ServeHTTP(w, signedPost(t, "/tests/results/acme/widgets/linux/a%2Fb", body, now, "n1"))
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	w = httptest.NewRecorder()
	d.ServeHTTP(w, signedPost(t, "/tests/results/acme/widgets/linux%2Fa/b", body, now, "n1"))
	assert.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
}

func TestDispatchStaleTimestampSkipsNonceStore(t *testing.T) {
	now := time.Now()
	d, nonces := newTestDispatcher(t, now)

	w := httptest.NewRecorder()
	d.ServeHTTP(w, signedPost(t, "/tests/results/acme/widgets/linux/main", "{}", now.Add(-6*time.Minute), "n1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_timestamp", gjson.Get(w.Body.String(), "code").String())
	assert.Equal(t, auth.HeaderTimestamp, gjson.Get(w.Body.String(), "field").String())
	assert.Equal(t, 0, nonces.calls)
}

func TestDispatchBadSignatureIsOpaque(t *testing.T) {
	now := time.Now()
	d, _ := newTestDispatcher(t, now)
	const path = "/tests/results/acme/widgets/linux/main"

	// Tampered body.
	r := signedPost(t, path, `{"passed":12}`, now, "n1")
	r.Body = io.NopCloser(strings.NewReader(`{"passed":13}`))
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", gjson.Get(w.Body.String(), "code").String())

	// Unknown organization resolves to the same opaque response.
	r = signedPost(t, "/tests/results/ghost/widgets/linux/main", "{}", now, "n2")
	w = httptest.NewRecorder()
	d.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", gjson.Get(w.Body.String(), "code").String())

	// Missing headers too.
	r = httptest.NewRequest("POST", path, strings.NewReader("{}"))
	w = httptest.NewRecorder()
	d.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", gjson.Get(w.Body.String(), "code").String())
}

func TestDispatchPanicBecomesInternalError(t *testing.T) {
	d := New(Options{
		Resolver: routing.NewResolver(&routing.Descriptor{
			Name:    "boom",
			Method:  "GET",
			Pattern: routing.Exact("/boom"),
			Handler: routing.HandlerFunc(func(http.ResponseWriter, *http.Request, *routing.Values) {
				panic("handler bug")
			}),
		}),
	})
	w := get(d, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", gjson.Get(w.Body.String(), "code").String())
}
