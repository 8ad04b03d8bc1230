package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/smart-meds/internal/request"
	"go.uber.org/zap"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantJSON   bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "panic recovered",
			handler:    func(http.ResponseWriter, *http.Request) { panic("test panic") },
			wantStatus: http.StatusInternalServerError,
			wantJSON:   true,
		},
		{
			name: "runtime panic recovered",
			handler: func(http.ResponseWriter, *http.Request) {
				var nilMap map[string]string
				nilMap["key"] = "value"
			},
			wantStatus: http.StatusInternalServerError,
			wantJSON:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := RequestID(ErrorHandler(zap.NewNop())(tt.handler))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
			req.Header.Set(request.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			resp := w.Result()
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if !tt.wantJSON {
				return
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %q", ct)
			}
			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Success || body.Error != "Internal Server Error" || body.Message != "An unexpected error occurred" {
				t.Errorf("unexpected body %+v", body)
			}
			if body.Path != "/api/v1/alerts" || body.Timestamp == "" {
				t.Errorf("Expected path and timestamp, got %+v", body)
			}
			if body.RequestID != "req-42" {
				t.Errorf("Expected request_id req-42, got %q", body.RequestID)
			}
		})
	}
}
