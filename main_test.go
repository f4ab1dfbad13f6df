package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/internal/tokens"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "main-test-secret-32-bytes-xxxxxxxxx"
	cfg.Sync = config.SyncConfig{Debounce: 50 * time.Millisecond, VersionLimit: 50, SendBuffer: 16, MessageRPS: 50, MessageBurst: 50, MaxMessageBytes: 1 << 20}
	return cfg
}

func bearer(t *testing.T, cfg *config.Config, sub string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(cfg, &models.User{Sub: sub, Name: sub}, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestNewApp_MemoryBackedRoutes(t *testing.T) {
	cfg := testConfig()
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.close()

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/documents", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"title":"notes"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, cfg, "alice"))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var d struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))

	req = httptest.NewRequest("GET", "/api/documents/"+d.ID+"/versions", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "alice"))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"versions":[]}`, w.Body.String())

	req = httptest.NewRequest("GET", "/api/documents/"+d.ID+"/versions/1/export", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "alice"))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotImplemented, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "alice"))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBuildVerifier_NoneConfigured(t *testing.T) {
	v := buildVerifier(context.Background(), &config.Config{})
	_, err := v.Verify(context.Background(), "anything")
	require.Error(t, err)
}

func TestBuildVerifier_ShortSecretIsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = "short"
	tok, err := tokens.GenerateAccessToken(cfg, &models.User{Sub: "alice"}, time.Minute)
	require.NoError(t, err)

	_, err = buildVerifier(context.Background(), cfg).Verify(context.Background(), tok)
	require.Error(t, err)
}
