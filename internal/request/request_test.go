package request

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr drops port", nil, "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.1", "10.0.0.1"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
		{"empty xff falls through", map[string]string{"X-Forwarded-For": " , 5.6.7.8", "X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			if got := ClientIP(r); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	t.Parallel()

	u := &models.User{ID: uuid.New(), Email: "a@b.c"}
	tests := []struct {
		name string
		ctx  context.Context
		want *models.User
	}{
		{name: "user present", ctx: WithUser(context.Background(), u), want: u},
		{name: "no user", ctx: context.Background()},
		{name: "wrong type", ctx: context.WithValue(context.Background(), UserContextKey(), "not a user")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil).WithContext(tt.ctx)
			if got := UserFromContext(r); got != tt.want {
				t.Errorf("UserFromContext() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID() without value = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "abc-123")
	if got := RequestID(ctx); got != "abc-123" {
		t.Errorf("RequestID() = %q, want abc-123", got)
	}

	if got := NewRequestID("trace-1"); got != "trace-1" {
		t.Errorf("NewRequestID(trace-1) = %q, want inbound id kept", got)
	}
	for _, bad := range []string{"", "has space", strings.Repeat("x", 65)} {
		got := NewRequestID(bad)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("NewRequestID(%q) = %q, want fresh UUID", bad, got)
		}
	}
}
