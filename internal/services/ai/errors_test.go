package ai

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExtractAPIError_FromMessage(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf(`POST "/chat/completions": 429 Too Many Requests {"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}`)

	apiErr := ExtractAPIError(err)
	if apiErr == nil {
		t.Fatal("expected APIError")
	}
	if !apiErr.IsPermanent {
		t.Error("insufficient_quota should be permanent")
	}
	if apiErr.RetryAfter == nil || *apiErr.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", apiErr.RetryAfter)
	}
	if !errors.Is(apiErr, ErrQuotaExceeded) {
		t.Error("expected errors.Is(ErrQuotaExceeded)")
	}
}

func TestExtractAPIError_NotAPI(t *testing.T) {
	t.Parallel()
	if got := ExtractAPIError(errors.New("connection refused")); got != nil {
		t.Errorf("ExtractAPIError() = %v, want nil", got)
	}
	if got := ExtractAPIError(nil); got != nil {
		t.Errorf("ExtractAPIError(nil) = %v, want nil", got)
	}
}

func TestGetRetryDelay(t *testing.T) {
	t.Parallel()
	rateErr := &APIError{StatusCode: 429}
	quotaErr := &APIError{StatusCode: 429, IsPermanent: true}
	tests := []struct {
		name    string
		err     error
		attempt int
		want    time.Duration
	}{
		{"default first attempt", errors.New("boom"), 0, 5 * time.Second},
		{"default capped", errors.New("boom"), 50, 5 * time.Minute},
		{"rate limit", rateErr, 1, 2 * time.Minute},
		{"rate limit capped", rateErr, 9, 15 * time.Minute},
		{"quota", quotaErr, 0, time.Hour},
		{"quota capped", quotaErr, 10, 24 * time.Hour},
		{"negative attempt", errors.New("boom"), -3, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetRetryDelay(tt.err, tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserFacingMessage(t *testing.T) {
	t.Parallel()
	if UserFacingMessage(nil) != "" {
		t.Error("nil error should have no message")
	}
	msg := UserFacingMessage(errors.New("dial tcp 10.0.0.1:443: i/o timeout"))
	if msg == "" || msg == "dial tcp 10.0.0.1:443: i/o timeout" {
		t.Errorf("raw error leaked: %q", msg)
	}
	if UserFacingMessage(&APIError{StatusCode: 429}) == msg {
		t.Error("rate limit should have its own message")
	}
}
