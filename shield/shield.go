// Package shield provides the HTTP hardening middleware for the surlign API:
// security headers, request body limits, and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// DefaultStack returns the standard middleware stack for the surlign API.
// Ordered: SecurityHeaders → MaxJSONBody → RateLimiter.
func DefaultStack() []func(http.Handler) http.Handler {
	rl := NewRateLimiter(DefaultRateLimit(), "/health")
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(4 << 20),
		rl.Middleware,
	}
}
