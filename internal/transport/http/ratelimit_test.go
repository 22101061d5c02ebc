package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates per-client rate limiting and idle eviction.
// Scope: Unit Test
// Security: Abuse prevention on the admin API
// Expected: Requests beyond the burst get 429; idle clients are forgotten.
// Test Case ID: HTTP-RL-01
func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, time.Hour)
	defer rl.Close()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.9:1000", "192.0.2.7, 10.0.0.1"))

	assert.Equal(t, 3, rl.size())
	rl.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, rl.size())
}
