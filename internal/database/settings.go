package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/models"
)

// SettingsRepository stores runtime-tunable settings as JSON documents keyed by name
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// get decodes the stored document into dest. Returns false when the key is unset.
func (r *SettingsRepository) get(ctx context.Context, key string, dest any) (bool, time.Time, error) {
	var raw []byte
	var updatedAt time.Time
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT value, updated_at FROM app_settings WHERE setting_key = $1`, key).Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, time.Time{}, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, updatedAt, nil
}

func (r *SettingsRepository) set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	now := time.Now()
	_, err = r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO app_settings (setting_key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (setting_key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, raw, now)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetCORS returns the stored CORS settings, or nil when none are stored
func (r *SettingsRepository) GetCORS(ctx context.Context) (*models.CORSSettings, error) {
	s := &models.CORSSettings{}
	ok, updatedAt, err := r.get(ctx, models.SettingKeyCORS, s)
	if err != nil || !ok {
		return nil, err
	}
	s.UpdatedAt = updatedAt
	return s, nil
}

// SetCORS stores the CORS settings. AllowedOrigins must list at least one origin.
func (r *SettingsRepository) SetCORS(ctx context.Context, s *models.CORSSettings) error {
	origins := SplitOrigins(s.AllowedOrigins)
	if len(origins) == 0 {
		return fmt.Errorf("allowed_origins cannot be empty")
	}
	stored := *s
	stored.AllowedOrigins = strings.Join(origins, ",")
	return r.set(ctx, models.SettingKeyCORS, stored)
}

// GetRateLimit returns the stored rate limit, or nil when none is stored
func (r *SettingsRepository) GetRateLimit(ctx context.Context) (*models.RateLimitSettings, error) {
	s := &models.RateLimitSettings{}
	ok, updatedAt, err := r.get(ctx, models.SettingKeyRateLimit, s)
	if err != nil || !ok {
		return nil, err
	}
	s.UpdatedAt = updatedAt
	return s, nil
}

// SetRateLimit stores the rate in ulule format, e.g. "5-S" or "100-M".
func (r *SettingsRepository) SetRateLimit(ctx context.Context, s *models.RateLimitSettings) error {
	rate := strings.TrimSpace(s.Rate)
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}
	return r.set(ctx, models.SettingKeyRateLimit, models.RateLimitSettings{Rate: rate})
}

// SplitOrigins splits a comma-separated origin list, trimming blanks and duplicates
func SplitOrigins(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
