package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_GlobalBucket(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.TryAcquire(), "request %d should be allowed", i)
	}
	assert.False(t, limiter.TryAcquire(), "burst should be exhausted")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, limiter.Wait(ctx))
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 0.001, BurstSize: 1, Enabled: true})
	require.NoError(t, err)
	require.True(t, limiter.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}

func TestLimiter_KeyBased(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 1, BurstSize: 2, Enabled: true})
	require.NoError(t, err)

	assert.True(t, limiter.TryAcquireForKey("10.0.0.1"))
	assert.True(t, limiter.TryAcquireForKey("10.0.0.1"))
	assert.False(t, limiter.TryAcquireForKey("10.0.0.1"))

	// Separate bucket per key
	assert.True(t, limiter.TryAcquireForKey("10.0.0.2"))
	assert.Equal(t, 2, limiter.Stats()["active_keys"])
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, err := New(Config{Enabled: false})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.TryAcquire())
		assert.True(t, limiter.TryAcquireForKey("k"))
	}
	assert.NoError(t, limiter.Wait(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Enabled: true, RequestsPerSecond: 0.5}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.BurstSize)
	assert.Equal(t, 10000, cfg.MaxKeys)
	assert.Equal(t, 5*time.Minute, cfg.CleanupPeriod)

	bad := Config{Enabled: true, RequestsPerSecond: -1}
	assert.Error(t, bad.Validate())
}

func TestHTTPMiddleware(t *testing.T) {
	limiter, err := New(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: true})
	require.NoError(t, err)

	handler := HTTPMiddleware(limiter, IPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pokemon?id=1", nil)
	req.RemoteAddr = "192.168.1.10:54321"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:54321"
	assert.Equal(t, "192.168.1.10", IPKey(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", IPKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", IPKey(req))
}
