package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/smart-meds/internal/logger"
	"github.com/benvon/smart-meds/internal/request"
	"go.uber.org/zap"
)

// RequestID assigns every request an id, echoing it in the response header
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := request.NewRequestID(r.Header.Get(request.RequestIDHeader))
		w.Header().Set(request.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}

// Logging writes one http_request line per request
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)

			// Auth runs further in, so the user is read back from the recorder
			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", request.RequestID(r.Context())),
			}
			if wrapped.userID != "" {
				fields = append(fields, zap.String("user_id", logpkg.SanitizeUserID(wrapped.userID)))
			}
			logger.Info("http_request", fields...)
		})
	}
}

// statusRecorder captures the status code while staying usable for SSE
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	userID      string
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streamed events are not buffered
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// userRecorder is implemented by writers that want the authenticated user id
type userRecorder interface {
	recordUser(id string)
}

func (rw *statusRecorder) recordUser(id string) {
	rw.userID = id
	if inner, ok := rw.ResponseWriter.(userRecorder); ok {
		inner.recordUser(id)
	}
}

// TagUser reports the authenticated user to the enclosing Logging middleware
func TagUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := request.UserFromContext(r); user != nil {
			if rec, ok := w.(userRecorder); ok {
				rec.recordUser(user.ID.String())
			}
		}
		next.ServeHTTP(w, r)
	})
}
