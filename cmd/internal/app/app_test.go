package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tether/cmd/internal/requestctx"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("TETHER_JWT_ACCESS_SECRET", strings.Repeat("s", 32))
	return Config{
		HTTPAddr:     "127.0.0.1:0",
		BcryptCost:   bcrypt.MinCost,
		NotifyBuffer: 16,
	}
}

func newTestApp(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestApp_HealthAndReadiness_Memory(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	var health healthResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Timestamp)

	var ready readyResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", &ready))
	assert.Equal(t, "disabled", ready.Checks["database"])
	assert.Equal(t, "disabled", ready.Checks["redis"])
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReadinessRequireDB = true
	srv := newTestApp(t, cfg)

	var ready readyResponse
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/readyz", &ready))
	assert.Equal(t, "error", ready.Status)
}

func TestApp_SQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "tether.db")
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.ReadinessRequireDB = true
	srv := newTestApp(t, cfg)

	var ready readyResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", &ready))
	assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, ready.Checks)

	body := `{"email":"linus@example.com","password":"Str0ng!Pass","firstName":"Linus","lastName":"T"}`
	resp, err := http.Post(srv.URL+"/v1/auth/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var auth struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The revocation landed in Redis.
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "bl:"))

	mr.Close()
	ready = readyResponse{}
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/readyz", &ready))
	assert.Equal(t, "error", ready.Checks["redis"])
}

func TestApp_RequestIDAndProblem(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/auth/login", bytes.NewBufferString(`{"email":"x@example.com","password":"nope"}`))
	require.NoError(t, err)
	req.Header.Set(requestctx.HeaderRequestID, "trace-me")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "trace-me", resp.Header.Get(requestctx.HeaderRequestID))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var problem struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "trace-me", problem.RequestID)
	assert.True(t, strings.HasSuffix(problem.Type, "/invalid-credentials"))
}

func TestApp_Metrics(t *testing.T) {
	srv := newTestApp(t, testConfig(t))

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", nil))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, `tether_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
	assert.Contains(t, out, "tether_http_request_duration_seconds")
}

func TestApp_RejectsWeakSecret(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("TETHER_JWT_ACCESS_SECRET", "short")

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestApp_RejectsBadBcryptCost(t *testing.T) {
	cfg := testConfig(t)
	cfg.BcryptCost = 40

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, ErrConfig)
}
