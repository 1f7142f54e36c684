package shield

import "net/http"

// MaxJSONBody returns middleware that caps the request body size. Capture and
// resolve requests carry full page HTML, so the cap must leave room for large
// documents while still bounding memory per request.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
