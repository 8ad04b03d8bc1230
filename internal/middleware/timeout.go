package middleware

import (
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds non-streaming requests, which may include one model round trip
const DefaultRequestTimeout = 60 * time.Second

// Timeout enforces a deadline on request handlers. Server-sent event requests are exempt;
// their lifetime is bounded by the client connection.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		limited := http.TimeoutHandler(next, timeout, `{"success":false,"error":"Request Timeout"}`)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isEventStream(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
