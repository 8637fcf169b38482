package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/badgeworks/badged/routing"
)

// VersionSource looks up the latest published version of a package. org
// is empty for unscoped packages. Registry clients live behind this
// boundary, the handler only renders.
type VersionSource interface {
	Latest(ctx context.Context, provider, org, pkg string) (string, bool, error)
}

// StaticVersions is a fixed VersionSource keyed by
// "provider/pkg" or "provider/org/pkg". Used in tests and dev mode.
type StaticVersions map[string]string

func (s StaticVersions) Latest(_ context.Context, provider, org, pkg string) (string, bool, error) {
	key := provider + "/" + pkg
	if org != "" {
		key = provider + "/" + org + "/" + pkg
	}
	v, ok := s[key]
	return v, ok, nil
}

// PackageBadge renders package-version badges.
type PackageBadge struct {
	Source VersionSource
}

func (h *PackageBadge) ServeRoute(w http.ResponseWriter, r *http.Request, params *routing.Values) {
	provider, _ := params.String("provider")
	org, _ := params.String("org")
	pkg, ok := params.String("package")
	if !ok || provider == "" {
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	version, found, err := h.Source.Latest(r.Context(), provider, org, pkg)
	if err != nil {
		log.Errorf("version lookup for %s/%s failed: %v", provider, pkg, err)
		serveJSONError(w, http.StatusBadGateway, "upstream_error", "")
		return
	}
	if !found {
		writeBadge(w, r, provider, "not found", colorGrey, defaultBadgeMaxAge)
		return
	}
	writeBadge(w, r, provider, version, colorBlue, defaultBadgeMaxAge)
}
