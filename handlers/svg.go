package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"time"
)

// Badge colors used by the handlers.
const (
	colorGreen = "#4c1"
	colorRed   = "#e05d44"
	colorGrey  = "#9f9f9f"
	colorBlue  = "#007ec6"
)

const defaultBadgeMaxAge = 5 * time.Minute

// renderBadge produces a flat-style SVG shield with a label and a value
// section. Width is estimated from a fixed average glyph width, which is
// what the common badge services do for the default font.
func renderBadge(label, value, color string) []byte {
	const glyph = 7
	lw := len(label)*glyph + 10
	vw := len(value)*glyph + 10
	w := lw + vw
	// The label can come straight from the request path, so nothing
	// reaches the markup unescaped.
	label = html.EscapeString(label)
	value = html.EscapeString(value)
	color = html.EscapeString(color)
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="20" role="img" aria-label="%s: %s">`+
		`<linearGradient id="s" x2="0" y2="100%%"><stop offset="0" stop-color="#bbb" stop-opacity=".1"/><stop offset="1" stop-opacity=".1"/></linearGradient>`+
		`<rect width="%d" height="20" fill="#555"/>`+
		`<rect x="%d" width="%d" height="20" fill="%s"/>`+
		`<rect width="%d" height="20" fill="url(#s)"/>`+
		`<g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">`+
		`<text x="%d" y="14">%s</text>`+
		`<text x="%d" y="14">%s</text>`+
		`</g></svg>`,
		w, label, value,
		lw,
		lw, vw, color,
		w,
		lw/2, label,
		lw+vw/2, value))
}

// writeBadge serves an SVG badge with cache validation headers. Badges
// are cheap to render but browsers and proxies hammer them, so every
// badge carries an ETag and a short max-age.
func writeBadge(w http.ResponseWriter, r *http.Request, label, value, color string, maxAge time.Duration) {
	svg := renderBadge(label, value, color)
	sum := sha256.Sum256(svg)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`

	h := w.Header()
	h.Set("Content-Type", "image/svg+xml;charset=utf-8")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge/time.Second)))
	h.Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(svg)
}
