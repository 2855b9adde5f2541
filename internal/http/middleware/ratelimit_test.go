package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatalf("expected burst of 2 to be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("expected a different client to have its own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatalf("expected a token to refill after one second")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("1.2.3.4")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.evictIdle()

	rl.mu.Lock()
	n := len(rl.limiters)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle limiter to be evicted, have %d", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/intake", nil)
		req.Header.Set("X-Real-Ip", "9.9.9.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [201 429], got %v", codes)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected host without port, got %q", got)
	}
	req.Header.Set("X-Real-Ip", "203.0.113.7")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected X-Real-Ip, got %q", got)
	}
}
