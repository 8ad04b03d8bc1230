package ai

import (
	"context"
	"strings"
	"testing"
)

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", ""},
		{"short", "sk-1234", RedactedValue},
		{"long", "sk-abcdefghijkl", "sk-a" + RedactedValue + "ijkl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeAPIKey(tt.key); got != tt.want {
				t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSanitizePrompt_TruncatesPreview(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", MaxPreviewLength+50)
	got := SanitizePrompt(long, false)
	if len(got) != MaxPreviewLength+len("...") {
		t.Errorf("preview length = %d, want %d", len(got), MaxPreviewLength+3)
	}
	if full := SanitizePrompt(long, true); full != long {
		t.Error("full log should keep content under the debug limit")
	}
	if got := SanitizeResponse("line\x00break", false); got != "linebreak" {
		t.Errorf("control characters not stripped: %q", got)
	}
}

func TestContextIDs(t *testing.T) {
	t.Parallel()
	ctx := WithRequestID(WithUserID(context.Background(), "user-1"), "req-9")
	if got := ExtractUserID(ctx); got != "user-1" {
		t.Errorf("ExtractUserID() = %q", got)
	}
	if got := ExtractRequestID(ctx); got != "req-9" {
		t.Errorf("ExtractRequestID() = %q", got)
	}
	if got := ExtractUserID(context.Background()); got != "" {
		t.Errorf("ExtractUserID(empty) = %q", got)
	}
}
