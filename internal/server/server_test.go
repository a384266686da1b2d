package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/database"
)

const testAdminSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	endpointsFile := filepath.Join(dir, "endpoints.yaml")
	endpoints := `endpoints:
  orders:
    secrets:
      - whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw
`
	require.NoError(t, os.WriteFile(endpointsFile, []byte(endpoints), 0o600))

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Receiver.EndpointsFile = endpointsFile
	cfg.Dispatcher.Enabled = false
	cfg.Admin.Enabled = true
	cfg.Admin.JWT.Secret = testAdminSecret
	return cfg
}

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := testConfig(t)

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv, err := New(cfg, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.secrets.Close() })

	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stampwire_")
}

func TestUnknownRouteNotFound(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/receipts", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRejectsForgedToken(t *testing.T) {
	srv := testServer(t)

	forged := config.JWTConfig{
		Secret: "another-secret-that-is-long-enough!",
		TTL:    time.Hour,
		Issuer: config.DefaultJWTIssuer,
	}
	token, err := GenerateAdminToken(forged, "attacker")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/receipts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminListEndpoints(t *testing.T) {
	srv := testServer(t)

	token, err := GenerateAdminToken(srv.cfg.Admin.JWT, "ops")
	require.NoError(t, err)

	paths := []string{"/api/admin/receipts", "/api/admin/queue", "/api/admin/dlq"}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}
}

func TestAdminRequeueMissingEntry(t *testing.T) {
	srv := testServer(t)

	token, err := GenerateAdminToken(srv.cfg.Admin.JWT, "ops")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/dlq/999/requeue", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateAdminTokenExpiry(t *testing.T) {
	cfg := config.JWTConfig{
		Secret: testAdminSecret,
		TTL:    -time.Minute,
		Issuer: config.DefaultJWTIssuer,
	}

	token, err := GenerateAdminToken(cfg, "ops")
	require.NoError(t, err)

	assert.Error(t, validateAdminToken(cfg, token))
}
