package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		user          *models.User
		handlerStatus int
	}{
		{name: "GET request", method: http.MethodGet, path: "/api/v1/alerts", handlerStatus: http.StatusOK},
		{name: "POST request", method: http.MethodPost, path: "/api/v1/chat/messages", handlerStatus: http.StatusCreated},
		{name: "authenticated request", method: http.MethodGet, path: "/api/v1/adherence", handlerStatus: http.StatusOK,
			user: &models.User{ID: uuid.New()}},
		{name: "404 request", method: http.MethodGet, path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})
			var inner http.Handler = TagUser(handler)
			if tt.user != nil {
				user := tt.user
				next := inner
				inner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
				})
			}
			h := RequestID(Logging(zap.New(core))(inner))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			if w.Header().Get(request.RequestIDHeader) == "" {
				t.Error("Expected X-Request-ID response header")
			}

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 http_request log, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("status_code = %v, want %d", fields["status_code"], tt.handlerStatus)
			}
			if fields["path"] != tt.path {
				t.Errorf("path = %v, want %s", fields["path"], tt.path)
			}
			gotUser, hasUser := fields["user_id"]
			if tt.user != nil && gotUser != tt.user.ID.String() {
				t.Errorf("user_id = %v, want %s", gotUser, tt.user.ID)
			}
			if tt.user == nil && hasUser {
				t.Errorf("unexpected user_id %v", gotUser)
			}
		})
	}
}

func TestStatusRecorder_Flush(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)
	var _ http.Flusher = rec

	_, _ = rec.Write([]byte("data: hi\n\n"))
	rec.WriteHeader(http.StatusTeapot) // ignored once the body started
	rec.Flush()

	if !w.Flushed {
		t.Error("Expected Flush to reach the underlying writer")
	}
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rec.statusCode)
	}
	if rec.Unwrap() != w {
		t.Error("Unwrap() should return the wrapped writer")
	}
}
