package middleware

import "net/http"

// SetJSONContentType defaults responses to JSON; handlers writing other
// content types (problem+json, PDFs) override it.
func SetJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
