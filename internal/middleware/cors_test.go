package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSExplicitOrigin(t *testing.T) {
	rec := serveCORS([]string{"https://app.fitmind.example"}, http.MethodGet, "https://app.fitmind.example")

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected request to reach handler, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.fitmind.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials for explicit origin, got %q", got)
	}
	headers := rec.Header().Get("Access-Control-Allow-Headers")
	for _, want := range []string{"Authorization", "X-FitMind-Session-ID"} {
		if !strings.Contains(headers, want) {
			t.Errorf("allow headers %q missing %s", headers, want)
		}
	}
}

func TestCORSWildcardHasNoCredentials(t *testing.T) {
	rec := serveCORS([]string{"*"}, http.MethodGet, "https://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://evil.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("wildcard must not allow credentials, got %q", got)
	}
}

func TestCORSRejectedOrigin(t *testing.T) {
	rec := serveCORS([]string{"https://app.fitmind.example"}, http.MethodGet, "https://other.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := serveCORS([]string{"*"}, http.MethodOptions, "https://app.fitmind.example")
	if rec.Code != http.StatusOK {
		t.Errorf("expected preflight 200, got %d", rec.Code)
	}
}
