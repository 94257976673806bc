package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/logger"
)

func testRouter() http.Handler {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(RouterParams{Config: cfg, Logger: logg})
}

func TestRouterHealthLive(t *testing.T) {
	handler := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Cout-Env") != "test" {
		t.Fatalf("expected env header, got %q", rec.Header().Get("X-Cout-Env"))
	}
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	handler := testRouter()
	for _, path := range []string{"/api/v1/jobs", "/api/v1/agents", "/api/v1/usage", "/api/v1/team"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, rec.Code)
		}
	}
}
