package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	h := SPAHandler()

	for _, path := range []string{"/", "/sessions/exp_1", "/index.html"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), "Physics Experiment Helper") {
			t.Errorf("%s: expected index page", path)
		}
		if w.Header().Get("Cache-Control") != "no-cache" {
			t.Errorf("%s: expected no-cache, got %q", path, w.Header().Get("Cache-Control"))
		}
	}
}
