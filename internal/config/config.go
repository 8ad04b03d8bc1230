package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal images
)

// Config holds application configuration
type Config struct {
	DatabaseURL         string
	ServerPort          string
	BaseURL             string
	FrontendURL         string
	OpenAIKey           string
	AIProvider          string
	AIModel             string
	AIBaseURL           string
	AITemperature       float64
	ChatHistoryWindow   int
	CatalogSearchLimit  int
	EnableHSTS          bool
	OIDCIssuer          string
	OIDCJWKSURL         string
	RedisURL            string
	RabbitMQURL         string
	RabbitMQPrefetch    int
	ReminderHorizonDays int
	WorkerDebugMode     bool
	ServerDebugMode     bool
	OTELEnabled         bool
	OTELEndpoint        string
	OTELInsecure        bool
	OTELSampleRatio     float64
	Timezone            string

	// Location is Timezone resolved; every "today" is computed in it
	Location *time.Location
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(true)
}

// LoadForTools loads configuration for operator tooling, which never talks to the broker
func LoadForTools() (*Config, error) {
	return load(false)
}

func load(requireBroker bool) (*Config, error) {
	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		BaseURL:             getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:3000"),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		AIProvider:          getEnv("AI_PROVIDER", "openai"),
		AIModel:             getEnv("AI_MODEL", ""),
		AIBaseURL:           getEnv("AI_BASE_URL", ""),
		AITemperature:       getEnvFloat("AI_TEMPERATURE", 0.3),
		ChatHistoryWindow:   getEnvInt("CHAT_HISTORY_WINDOW", 20),
		CatalogSearchLimit:  getEnvInt("CATALOG_SEARCH_LIMIT", 5),
		EnableHSTS:          getEnvBool("ENABLE_HSTS", false),
		OIDCIssuer:          getEnv("OIDC_ISSUER", ""),
		OIDCJWKSURL:         getEnv("OIDC_JWKS_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:    getEnvInt("RABBITMQ_PREFETCH", 1),
		ReminderHorizonDays: getEnvInt("REMINDER_HORIZON_DAYS", 7),
		WorkerDebugMode:     getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:     getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:         getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio:     getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		Timezone:            getEnv("TIMEZONE", "UTC"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if requireBroker && cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for reminder scheduling")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.AITemperature < 0 || cfg.AITemperature > 2 {
		return nil, fmt.Errorf("AI_TEMPERATURE must be between 0 and 2, got %v", cfg.AITemperature)
	}

	return cfg, nil
}

// JWKSURL returns the configured key set URL, defaulting to the issuer's well-known location
func (c *Config) JWKSURL() string {
	if c.OIDCJWKSURL != "" {
		return c.OIDCJWKSURL
	}
	if c.OIDCIssuer == "" {
		return ""
	}
	return trimSlash(c.OIDCIssuer) + "/.well-known/jwks.json"
}

// Now returns the current time in the configured location
func (c *Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
