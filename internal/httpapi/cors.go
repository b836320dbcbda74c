package httpapi

import "net/http"

// CORS opens every response to any origin. The relay carries no cookies or
// credentials, so a wildcard origin is sufficient.
//
// Headers set:
//   - Access-Control-Allow-Origin: *
//   - Access-Control-Allow-Methods: GET, POST, OPTIONS
//   - Access-Control-Allow-Headers: Content-Type, Accept, Accept-Encoding
//   - Access-Control-Expose-Headers: X-Event-Count, X-Precompressed
//   - Access-Control-Max-Age: 86400
//
// Preflight requests (OPTIONS) get 204 No Content and never reach next.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Accept-Encoding")
		h.Set("Access-Control-Expose-Headers", "X-Event-Count, X-Precompressed")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
