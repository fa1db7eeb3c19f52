package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"zapdesk/platform/config"
	"zapdesk/platform/logger"
)

func newAuthHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{APIKey: "super-secret-key-12345"}
	log := logger.NewWithConfig(logger.TestConfig())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return APIKeyAuth(cfg, log)(next)
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)

	newAuthHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthValidKey(t *testing.T) {
	for _, header := range []string{"Authorization", "X-API-Key"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/instances", nil)
		req.Header.Set(header, "super-secret-key-12345")

		newAuthHandler(t).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, header)
	}
}

func TestAPIKeyAuthInvalidKey(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("X-API-Key", "wrong")

	newAuthHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthSkipsOpenPaths(t *testing.T) {
	for _, path := range []string{"/health", "/chatwoot/webhook/acme"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)

		newAuthHandler(t).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "******", maskAPIKey("short1"))
	assert.Equal(t, "abcdefgh********6789", maskAPIKey("abcdefgh123456786789"))
}
