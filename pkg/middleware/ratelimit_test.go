package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-visibility/pkg/config"
)

func newTestLimiter(t *testing.T, requests int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, Requests: requests, Window: window}, zap.NewNop())
	require.NotNil(t, l)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func serve(h http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)
	h := l.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(h, "/api/projects", "10.0.0.1:5000").Code, "request %d", i)
	}

	rec := serve(h, "/api/projects", "10.0.0.1:5001")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])
}

func TestRateLimiter_PerClient(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	h := l.Middleware(okHandler)

	assert.Equal(t, http.StatusOK, serve(h, "/api/projects", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "/api/projects", "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, serve(h, "/api/projects", "10.0.0.2:1").Code)
}

func TestRateLimiter_Refills(t *testing.T) {
	l, now := newTestLimiter(t, 2, time.Minute)
	h := l.Middleware(okHandler)

	serve(h, "/api/checks/run", "10.0.0.1:1")
	serve(h, "/api/checks/run", "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "/api/checks/run", "10.0.0.1:1").Code)

	*now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, serve(h, "/api/checks/run", "10.0.0.1:1").Code)
}

func TestRateLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	l, now := newTestLimiter(t, 1, time.Minute)
	h := l.Middleware(okHandler)

	serve(h, "/api/projects", "10.0.0.1:1")
	for i := 0; i < 5; i++ {
		serve(h, "/api/projects", "10.0.0.1:1")
	}

	*now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, serve(h, "/api/projects", "10.0.0.1:1").Code)
}

func TestRateLimiter_SkipsNonAPIPaths(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	h := l.Middleware(okHandler)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(h, "/health", "10.0.0.1:1").Code)
	}
	assert.Zero(t, l.Clients())
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	l, now := newTestLimiter(t, 5, time.Minute)
	h := l.Middleware(okHandler)

	serve(h, "/api/projects", "10.0.0.1:1")
	serve(h, "/api/projects", "10.0.0.2:1")
	assert.Equal(t, 2, l.Clients())

	*now = now.Add(2 * time.Minute)
	serve(h, "/api/projects", "10.0.0.3:1")
	assert.Equal(t, 1, l.Clients())
}

func TestRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(config.RateLimitConfig{Enabled: false, Requests: 1, Window: time.Minute}, zap.NewNop()))

	var l *RateLimiter
	h := l.Middleware(okHandler)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(h, "/api/projects", "10.0.0.1:1").Code)
	}
}
