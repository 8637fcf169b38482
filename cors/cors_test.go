package cors

import (
	"net/http"
	"testing"
)

func preflightRequest(t *testing.T, headers map[string]string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("OPTIONS", "https://badges.example.org/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestPreflightMinimalMethodDisclosure(t *testing.T) {
	n := New(Options{})
	req := preflightRequest(t, map[string]string{
		"Origin":                        "https://app.example.org",
		"Access-Control-Request-Method": "GET",
	})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Methods"); got != "GET" {
		t.Errorf("Allow-Methods = %q, want GET only", got)
	}
}

func TestPreflightFullSetWithoutRequestMethod(t *testing.T) {
	n := New(Options{})
	req := preflightRequest(t, map[string]string{"Origin": "https://app.example.org"})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Methods"); got != "GET, HEAD, OPTIONS" {
		t.Errorf("Allow-Methods = %q, want full set", got)
	}
}

func TestPreflightDisallowedMethodAdvertisesFullSet(t *testing.T) {
	n := New(Options{})
	req := preflightRequest(t, map[string]string{
		"Origin":                        "https://app.example.org",
		"Access-Control-Request-Method": "DELETE",
	})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Methods"); got != "GET, HEAD, OPTIONS" {
		t.Errorf("Allow-Methods = %q, want full set for a disallowed method", got)
	}
}

func TestPreflightHeaderIntersection(t *testing.T) {
	n := New(Options{AllowedHeaders: []string{"Content-Type", "X-Signature", "X-Timestamp", "X-Nonce"}})
	req := preflightRequest(t, map[string]string{
		"Origin":                         "https://app.example.org",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "x-signature, X-Evil, content-type",
	})
	h := http.Header{}
	n.Preflight(req, []string{"POST", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Headers"); got != "X-Signature, Content-Type" {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestPreflightOmitsHeadersOnEmptyIntersection(t *testing.T) {
	n := New(Options{AllowedHeaders: []string{"Content-Type"}})
	req := preflightRequest(t, map[string]string{
		"Origin":                         "https://app.example.org",
		"Access-Control-Request-Headers": "X-Evil",
	})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if _, ok := h["Access-Control-Allow-Headers"]; ok {
		t.Error("Allow-Headers present for empty intersection")
	}
}

func TestWildcardOriginWithoutCredentials(t *testing.T) {
	n := New(Options{})
	req := preflightRequest(t, map[string]string{"Origin": "https://anything.example.org"})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if _, ok := h["Access-Control-Allow-Credentials"]; ok {
		t.Error("Allow-Credentials emitted in wildcard mode")
	}
}

func TestCredentialedModeEchoesAllowedOrigin(t *testing.T) {
	n := New(Options{
		AllowedOrigins:   []string{"https://app.example.org"},
		AllowCredentials: true,
	})

	req := preflightRequest(t, map[string]string{"Origin": "https://app.example.org"})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Origin"); got != "https://app.example.org" {
		t.Errorf("Allow-Origin = %q, want echoed origin", got)
	}
	if got := h.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	// Unknown origin: no allow-origin header at all, silent rejection.
	req = preflightRequest(t, map[string]string{"Origin": "https://evil.example.org"})
	h = http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if _, ok := h["Access-Control-Allow-Origin"]; ok {
		t.Error("Allow-Origin emitted for a disallowed origin")
	}
	if _, ok := h["Access-Control-Allow-Credentials"]; ok {
		t.Error("Allow-Credentials emitted for a disallowed origin")
	}
}

func TestAllowOriginFunc(t *testing.T) {
	n := New(Options{
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return origin == "https://preview.example.org"
		},
	})
	req := preflightRequest(t, map[string]string{"Origin": "https://preview.example.org"})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Allow-Origin"); got != "https://preview.example.org" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestMaxAge(t *testing.T) {
	n := New(Options{})
	req := preflightRequest(t, map[string]string{"Origin": "https://app.example.org"})
	h := http.Header{}
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q, want 3600", got)
	}
}

func TestVaryAppendsAndDeduplicates(t *testing.T) {
	n := New(Options{AllowedOrigins: []string{"https://app.example.org"}})
	req := preflightRequest(t, map[string]string{
		"Origin":                        "https://app.example.org",
		"Access-Control-Request-Method": "GET",
	})
	h := http.Header{}
	h.Set("Vary", "accept-encoding, origin")
	n.Preflight(req, []string{"GET", "HEAD", "OPTIONS"}, h)
	if got := h.Get("Vary"); got != "accept-encoding, origin, Access-Control-Request-Method" {
		t.Errorf("Vary = %q", got)
	}
}

func TestDecorateExposeHeaders(t *testing.T) {
	n := New(Options{ExposeHeaders: []string{"ETag", "Cache-Control"}})
	req, _ := http.NewRequest("GET", "https://badges.example.org/health", nil)
	req.Header.Set("Origin", "https://app.example.org")
	h := http.Header{}
	n.Decorate(h, req)
	if got := h.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "ETag, Cache-Control" {
		t.Errorf("Expose-Headers = %q", got)
	}
}
