package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoChoices is returned when the API response has no choices
	ErrNoChoices = errors.New("no choices in response")
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // quota exhaustion, as opposed to a transient rate limit
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap maps the API error onto the package sentinels
func (e *APIError) Unwrap() error {
	switch {
	case e.IsPermanent:
		return ErrQuotaExceeded
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// IsRateLimitError checks if an error is a transient rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError converts SDK errors into an APIError. Returns nil for errors that did
// not come from the API (network failures, context cancellation).
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{
			Message:    sdkErr.Message,
			Type:       sdkErr.Type,
			Code:       sdkErr.Code,
			StatusCode: sdkErr.StatusCode,
		}
		if apiErr.Message == "" {
			apiErr.Message = sdkErr.Error()
		}
		applyRetryHint(apiErr)
		return apiErr
	}

	// Some gateways only surface the status inside the message body.
	errStr := err.Error()
	if !strings.Contains(errStr, "429") {
		return nil
	}
	apiErr := &APIError{
		StatusCode: http.StatusTooManyRequests,
		Message:    errStr,
		Type:       "rate_limit_error",
	}
	if start := strings.Index(errStr, "{"); start != -1 {
		if end := strings.LastIndex(errStr, "}"); end > start {
			var body struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			}
			if json.Unmarshal([]byte(errStr[start:end+1]), &body) == nil {
				apiErr.Message = body.Message
				apiErr.Type = body.Type
				apiErr.Code = body.Code
			}
		}
	}
	applyRetryHint(apiErr)
	return apiErr
}

func applyRetryHint(apiErr *APIError) {
	if apiErr.Code == "insufficient_quota" {
		apiErr.IsPermanent = true
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		return
	}
	retryAfter := 60 * time.Second
	if apiErr.IsPermanent {
		retryAfter = time.Hour
	}
	apiErr.RetryAfter = &retryAfter
}

// GetRetryDelay returns an exponential backoff delay for the attempt based on error type
func GetRetryDelay(err error, attempt int) time.Duration {
	shift := min(max(attempt, 0), 10)
	factor := time.Duration(1 << uint(shift))

	switch {
	case IsQuotaError(err):
		return min(time.Hour*factor, 24*time.Hour)
	case IsRateLimitError(err):
		delay := min(60*time.Second*factor, 15*time.Minute)
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		return delay
	default:
		return min(5*time.Second*factor, 5*time.Minute)
	}
}

// UserFacingMessage turns a provider failure into plain language for the chat surface
func UserFacingMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsQuotaError(err):
		return "The assistant is temporarily unavailable. Please try again later."
	case IsRateLimitError(err):
		return "The assistant is busy right now. Please try again in a minute."
	default:
		return "Sorry, I couldn't complete that request. Please try again."
	}
}
