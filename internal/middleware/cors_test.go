package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsGet(handler http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/scrapers", nil)
	req.Header.Set("Origin", origin)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORSOriginMatching(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000", "*.fleet.example.com"},
	}
	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"https://dash.fleet.example.com", true},
		{"http://evil.com", false},
		{"http://fleet.example.com.evil.com", false},
	}
	for _, tt := range tests {
		rr := corsGet(handler, tt.origin)
		got := rr.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %s: allow header = %q, want echoed", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %s: allow header = %q, want none", tt.origin, got)
		}
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"*"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := corsGet(handler, "http://any-dashboard.example")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://any-dashboard.example" {
		t.Errorf("allow header = %q, want the request origin", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	}
	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest("OPTIONS", "/scrapers/start-flexible", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE" {
		t.Errorf("methods = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Errorf("headers = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("credentials = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("max-age = %q", got)
	}
}

func TestCORSDefaultConfig(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := corsGet(handler, "http://localhost:5173")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("default config should allow the dev dashboard, got %q", got)
	}
}
