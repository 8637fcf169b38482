package routing

import (
	"net/http"
	"sort"
	"testing"
)

func noopHandler() Handler {
	return HandlerFunc(func(http.ResponseWriter, *http.Request, *Values) {})
}

func testResolver() *Resolver {
	return NewResolver(
		&Descriptor{Name: "health", Method: "GET", Pattern: Exact("/health"), Handler: noopHandler()},
		&Descriptor{Name: "packageBadge", Method: "GET", Pattern: MustTemplate("/badges/packages/{provider}/{package}"), Handler: noopHandler()},
		&Descriptor{Name: "scopedPackageBadge", Method: "GET", Pattern: MustTemplate("/badges/packages/{provider}/{org}/{package}"), Handler: noopHandler()},
		&Descriptor{Name: "testBadge", Method: "GET", Pattern: MustTemplate("/badges/tests/{platform}/{owner}/{repo}/{branch}"), Handler: noopHandler()},
		&Descriptor{Name: "ingestResults", Method: "POST", Pattern: MustTemplate("/tests/results/{owner}/{repo}/{platform}/{branch}"), Handler: noopHandler(), Protected: true},
		&Descriptor{Name: "resultsRedirect", Method: "GET", Pattern: MustTemplate("/redirect/test-results/{platform}/{owner}/{repo}/{branch}"), Handler: noopHandler()},
	)
}

func TestResolveFirstMatchWins(t *testing.T) {
	rs := testResolver()
	var v Values
	d, ok := rs.Resolve("GET", "/badges/packages/nuget/Newtonsoft.Json", &v)
	if !ok {
		t.Fatal("no match")
	}
	if d.Name != "packageBadge" {
		t.Errorf("resolved %q, want packageBadge", d.Name)
	}
	if got, _ := v.String("provider"); got != "nuget" {
		t.Errorf("provider = %q", got)
	}
	if got, _ := v.String("package"); got != "Newtonsoft.Json" {
		t.Errorf("package = %q", got)
	}
}

func TestResolveScopedPackage(t *testing.T) {
	rs := testResolver()
	var v Values
	d, ok := rs.Resolve("GET", "/badges/packages/npm/acme/widgets", &v)
	if !ok || d.Name != "scopedPackageBadge" {
		t.Fatalf("resolved %v, %v", d, ok)
	}
	if got, _ := v.String("org"); got != "acme" {
		t.Errorf("org = %q", got)
	}
}

func TestResolveHeadAsGet(t *testing.T) {
	rs := testResolver()
	var vGet, vHead Values
	dGet, okGet := rs.Resolve("GET", "/health", &vGet)
	dHead, okHead := rs.Resolve("HEAD", "/health", &vHead)
	if !okGet || !okHead || dGet != dHead {
		t.Errorf("HEAD resolution differs from GET: %v/%v %v/%v", dGet, okGet, dHead, okHead)
	}
	if _, ok := rs.Resolve("HEAD", "/tests/results/a/b/c/d", &vHead); ok {
		t.Error("HEAD matched a POST-only route")
	}
}

func TestResolveMethodMismatch(t *testing.T) {
	rs := testResolver()
	var v Values
	if _, ok := rs.Resolve("POST", "/health", &v); ok {
		t.Error("POST /health matched")
	}
	if _, ok := rs.Resolve("GET", "/tests/results/a/b/c/d", &v); ok {
		t.Error("GET matched the ingest route")
	}
}

func TestResolveNoMatchIsTotal(t *testing.T) {
	rs := testResolver()
	var v Values
	for _, method := range []string{"GET", "HEAD", "POST", "PUT", "DELETE"} {
		if _, ok := rs.Resolve(method, "/no/such/path", &v); ok {
			t.Errorf("%s /no/such/path matched", method)
		}
	}
	if got := rs.AllowedMethods("/no/such/path"); len(got) != 1 || got[0] != "OPTIONS" {
		t.Errorf("AllowedMethods = %v, want [OPTIONS]", got)
	}
}

func TestAllowedMethods(t *testing.T) {
	rs := testResolver()
	for _, tt := range []struct {
		path string
		want []string
	}{
		{"/health", []string{"GET", "HEAD", "OPTIONS"}},
		{"/tests/results/acme/widgets/linux/main", []string{"OPTIONS", "POST"}},
		{"/badges/packages/nuget/Newtonsoft.Json", []string{"GET", "HEAD", "OPTIONS"}},
	} {
		got := rs.AllowedMethods(tt.path)
		sort.Strings(got)
		if len(got) != len(tt.want) {
			t.Errorf("AllowedMethods(%q) = %v, want %v", tt.path, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("AllowedMethods(%q) = %v, want %v", tt.path, got, tt.want)
				break
			}
		}
	}
}
