package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/highlights", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("CSP header missing")
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 3, WindowSeconds: 60})
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/highlights", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/highlights", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// A different IP still gets through.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/highlights", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("other ip status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterExcludesPrefixes(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 1, WindowSeconds: 60}, "/health")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Fatalf("health request %d: status = %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 1, WindowSeconds: 60})

	if !rl.allow("ip") {
		t.Fatal("first request blocked")
	}
	if rl.allow("ip") {
		t.Fatal("second request allowed within window")
	}

	// Force the window into the past.
	val, _ := rl.buckets.Load("ip")
	val.(*bucket).resetAt = time.Now().Add(-time.Second)

	if !rl.allow("ip") {
		t.Fatal("request blocked after window reset")
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := ExtractIP(req); got != "192.0.2.7" {
		t.Errorf("ExtractIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Errorf("ExtractIP with XFF = %q", got)
	}
}

func TestMaxJSONBody(t *testing.T) {
	h := MaxJSONBody(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(200)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/highlights", strings.NewReader("tiny"))
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("small body status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/highlights", strings.NewReader(strings.Repeat("x", 100)))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d, want 413", rec.Code)
	}
}
