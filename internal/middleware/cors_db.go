package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORSReloader wraps rs/cors and periodically reloads its settings from app_settings
type CORSReloader struct {
	repo     database.SettingsRepositoryInterface
	fallback []string // FRONTEND_URL origins
	log      *zap.Logger
	interval time.Duration

	once    sync.Once
	mu      sync.RWMutex
	current *cors.Cors
}

// NewCORSReloader creates a CORS middleware. frontendURLFallback (comma-separated) is used
// until origins are stored.
func NewCORSReloader(repo database.SettingsRepositoryInterface, frontendURLFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	fallback := database.SplitOrigins(frontendURLFallback)
	if len(fallback) == 0 {
		fallback = []string{"http://localhost:3000"}
	}
	return &CORSReloader{
		repo:     repo,
		fallback: fallback,
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware loads the initial settings and returns a middleware applying the current ones
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	r.once.Do(func() { r.load(context.Background()) })
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			c := r.current
			r.mu.RUnlock()
			c.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start runs the reload loop until ctx is cancelled
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *CORSReloader) options(ctx context.Context) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   r.fallback,
		AllowCredentials: true,
		MaxAge:           86400,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
	}
	cfg, err := r.repo.GetCORS(ctx)
	if err != nil {
		r.log.Warn("cors_settings_load_failed_using_fallback", zap.Error(err))
		return opts
	}
	if cfg == nil {
		return opts
	}
	if origins := database.SplitOrigins(cfg.AllowedOrigins); len(origins) > 0 {
		opts.AllowedOrigins = origins
	}
	opts.AllowCredentials = cfg.AllowCredentials
	opts.MaxAge = cfg.MaxAge
	return opts
}

func (r *CORSReloader) load(ctx context.Context) {
	c := cors.New(r.options(ctx))
	r.mu.Lock()
	r.current = c
	r.mu.Unlock()
}
