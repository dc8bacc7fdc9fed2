package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, nil)

	// Burst capacity admits the configured budget immediately
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d within burst should pass", i)
	}
	assert.False(t, rl.Allow("client-a"), "request beyond burst should be denied")

	// A different client has its own bucket
	assert.True(t, rl.Allow("client-b"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, nil)
	rl.Allow("stale-client")

	rl.CleanupStale(0)

	rl.mu.Lock()
	_, exists := rl.limiters["stale-client"]
	rl.mu.Unlock()
	assert.False(t, exists, "stale limiter removed")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, nil)

	var hits int
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	request := func(cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, request("tok-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("tok-1").Code)
	assert.Equal(t, 1, hits)

	// Separate session cookie gets a separate budget
	assert.Equal(t, http.StatusOK, request("tok-2").Code)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(60, nil) // one token per second

	for i := 0; i < 60; i++ {
		rl.Allow("c")
	}
	assert.False(t, rl.Allow("c"))

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, rl.Allow("c"), "bucket refills over time")
}
