package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/badgeworks/badged/routing"
)

// TestResults bundles the handlers around stored test results: the
// authenticated ingest endpoint, the badge and the redirect to the full
// report.
type TestResults struct {
	Store ResultStore
}

// resultScope rebuilds the storage scope from the captured route
// parameters. Both the ingest and the read routes capture the same four
// names, in different template positions.
func resultScope(params *routing.Values) (string, bool) {
	var parts [4]string
	for i, name := range [...]string{"owner", "repo", "platform", "branch"} {
		v, ok := params.String(name)
		if !ok {
			return "", false
		}
		parts[i] = v
	}
	return parts[0] + "/" + parts[1] + "/" + parts[2] + "/" + parts[3], true
}

// Ingest accepts a POSTed test-result document. The signature was
// already validated by the dispatcher, the body here is trusted input
// from an authenticated CI run.
func (h *TestResults) Ingest(w http.ResponseWriter, r *http.Request, params *routing.Values) {
	scope, ok := resultScope(params)
	if !ok {
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if !gjson.ValidBytes(body) {
		serveJSONError(w, http.StatusBadRequest, "invalid_payload", "")
		return
	}

	doc := gjson.ParseBytes(body)
	for _, field := range []string{"passed", "failed"} {
		if !doc.Get(field).Exists() {
			serveJSONError(w, http.StatusBadRequest, "invalid_payload", field)
			return
		}
	}

	rec := Result{
		Passed:   int(doc.Get("passed").Int()),
		Failed:   int(doc.Get("failed").Int()),
		Skipped:  int(doc.Get("skipped").Int()),
		URL:      doc.Get("url").String(),
		Commit:   doc.Get("commit").String(),
		Key:      doc.Get("key").String(),
		Recorded: time.Now().UTC(),
	}

	switch err := h.Store.Put(r.Context(), scope, rec); {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"status":"created","scope":%q}`, scope)
	case err == ErrDuplicate:
		serveJSONError(w, http.StatusConflict, "duplicate_submission", "key")
	default:
		log.Errorf("failed to store results for %s: %v", scope, err)
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// Badge renders the test-result badge for a scope. An unknown scope is
// still a badge, grey "no results", so READMEs never break.
func (h *TestResults) Badge(w http.ResponseWriter, r *http.Request, params *routing.Values) {
	scope, ok := resultScope(params)
	if !ok {
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	rec, found, err := h.Store.Get(r.Context(), scope)
	if err != nil {
		log.Errorf("failed to load results for %s: %v", scope, err)
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if !found {
		writeBadge(w, r, "tests", "no results", colorGrey, defaultBadgeMaxAge)
		return
	}

	value := fmt.Sprintf("%d passed", rec.Passed)
	color := colorGreen
	if rec.Failed > 0 {
		value = fmt.Sprintf("%d passed, %d failed", rec.Passed, rec.Failed)
		color = colorRed
	}
	writeBadge(w, r, "tests", value, color, defaultBadgeMaxAge)
}

// Redirect sends the caller to the stored full test report.
func (h *TestResults) Redirect(w http.ResponseWriter, r *http.Request, params *routing.Values) {
	scope, ok := resultScope(params)
	if !ok {
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	rec, found, err := h.Store.Get(r.Context(), scope)
	if err != nil {
		log.Errorf("failed to load results for %s: %v", scope, err)
		serveJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if !found || rec.URL == "" {
		serveJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	http.Redirect(w, r, rec.URL, http.StatusFound)
}

func serveJSONError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"code": code}
	if field != "" {
		resp["field"] = field
	}
	json.NewEncoder(w).Encode(resp)
}
