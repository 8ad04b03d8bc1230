package models

import "time"

// Setting keys stored in app_settings
const (
	SettingKeyCORS      = "cors"
	SettingKeyRateLimit = "ratelimit"
)

// CORSSettings holds runtime CORS configuration
type CORSSettings struct {
	AllowedOrigins   string    `json:"allowed_origins" yaml:"allowed_origins"` // comma-separated
	AllowCredentials bool      `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int       `json:"max_age" yaml:"max_age"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

// RateLimitSettings holds the runtime rate in ulule format, e.g. "5-S" or "100-M".
type RateLimitSettings struct {
	Rate      string    `json:"rate" yaml:"rate"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
