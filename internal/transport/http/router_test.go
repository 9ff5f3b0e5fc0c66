package http_test

import (
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	transportHTTP "github.com/keygate/keygate/internal/transport/http"
)

// TestRouterTable verifies the mounted route surface: every documented
// endpoint resolves, and retired paths stay gone.
func TestRouterTable(t *testing.T) {
	// A zero-value Handler is enough for route matching; handlers are
	// never executed.
	h := &transportHTTP.Handler{}
	r := transportHTTP.NewRouter(h, transportHTTP.NewRateLimiter(100, 100))

	tests := []struct {
		name        string
		method      string
		path        string
		expectFound bool
	}{
		{"Health", "GET", "/health", true},
		{"Readiness", "GET", "/ready", true},
		{"OIDC Discovery", "GET", "/.well-known/openid-configuration", true},
		{"Authorize", "GET", "/oauth/authorize", true},
		{"Token", "POST", "/oauth/token", true},
		{"Introspect", "POST", "/oauth/introspect", true},
		{"Revoke", "POST", "/oauth/revoke", true},
		{"Client Registration", "POST", "/clients", true},
		{"Event Ingest", "POST", "/events/ingest", true},
		{"Events Health", "GET", "/events/health", true},

		{"No token over GET", "GET", "/oauth/token", false},
		{"No JWKS endpoint", "GET", "/jwks.json", false},
		{"No login endpoint", "POST", "/api/v1/auth/login", false},
		{"No registration under /auth", "POST", "/auth/register", false},
		{"No legacy oauth2 prefix", "POST", "/oauth2/token", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)

			rctx := chi.NewRouteContext()
			found := r.Match(rctx, req.Method, req.URL.Path)

			if found != tt.expectFound {
				if tt.expectFound {
					t.Errorf("route %s %s should exist", tt.method, tt.path)
				} else {
					t.Errorf("route %s %s should NOT exist", tt.method, tt.path)
				}
			}
		})
	}
}
