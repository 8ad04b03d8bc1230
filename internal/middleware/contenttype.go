package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ContentType requires a JSON Content-Type on requests that carry a body
func ContentType(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
				// Bodiless actions such as acknowledge may omit it
				if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
					next.ServeHTTP(w, r)
					return
				}
				contentType := strings.ToLower(r.Header.Get("Content-Type"))
				if contentType == "" {
					respondErrorJSON(w, r, http.StatusBadRequest, "Bad Request", "Content-Type header is required", logger)
					return
				}
				if !strings.HasPrefix(contentType, "application/json") {
					respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Content-Type must be application/json", logger)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
