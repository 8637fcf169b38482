// Package handlers contains the badge-content handlers behind the
// request admission core: health, test-result ingestion and badges, and
// package-version badges. They implement routing.Handler and only see
// requests that already passed routing, CORS and authentication.
package handlers

import (
	"net/http"

	"github.com/badgeworks/badged/routing"
)

// Health reports process liveness.
type Health struct{}

func (Health) ServeRoute(w http.ResponseWriter, _ *http.Request, _ *routing.Values) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
