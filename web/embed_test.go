package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestClientRoutesServeIndex(t *testing.T) {
	for _, p := range []string{"/", "/chat", "/chat/history/today"} {
		rec := serve(p)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "<title>FitMind</title>") {
			t.Errorf("%s: expected the chat client page", p)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
			t.Errorf("%s: expected no-cache, got %q", p, got)
		}
	}
}

func TestMissingAssetIsNotFound(t *testing.T) {
	if rec := serve("/assets/app.js"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing asset, got %d", rec.Code)
	}
}
