package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/request"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"
)

// DefaultRate is used until a rate is stored in app_settings
const DefaultRate = "10-S"

// RateLimitReloader wraps ulule/limiter and periodically reloads the rate from app_settings
type RateLimitReloader struct {
	store       limiter.Store
	repo        database.SettingsRepositoryInterface
	defaultRate string
	log         *zap.Logger
	interval    time.Duration

	once    sync.Once
	mu      sync.RWMutex
	current *stdlibmw.Middleware
	rate    string
}

// NewRateLimitReloader creates a rate limit middleware over store. Requests are keyed by
// authenticated user when known, otherwise by client IP.
func NewRateLimitReloader(store limiter.Store, repo database.SettingsRepositoryInterface, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = DefaultRate
	}
	return &RateLimitReloader{
		store:       store,
		repo:        repo,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}
}

// Middleware loads the initial rate and returns a middleware enforcing the current rate.
// The returned function is cheap; gorilla/mux calls it on every request.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	r.once.Do(func() { r.load(context.Background()) })
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			mw := r.current
			r.mu.RUnlock()
			if mw == nil {
				next.ServeHTTP(w, req)
				return
			}
			mw.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start runs the reload loop until ctx is cancelled
func (r *RateLimitReloader) Start(ctx context.Context) {
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

// Rate returns the rate currently enforced
func (r *RateLimitReloader) Rate() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

func (r *RateLimitReloader) load(ctx context.Context) {
	rateStr := r.defaultRate
	cfg, err := r.repo.GetRateLimit(ctx)
	switch {
	case err != nil:
		r.log.Warn("ratelimit_settings_load_failed_using_default",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
	case cfg != nil && cfg.Rate != "":
		rateStr = cfg.Rate
	default:
		if err := r.repo.SetRateLimit(ctx, &models.RateLimitSettings{Rate: r.defaultRate}); err != nil {
			r.log.Error("ratelimit_default_save_failed", zap.Error(err))
		}
	}

	if rateStr == r.Rate() {
		return
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("ratelimit_rate_invalid_using_default",
			zap.Error(err),
			zap.String("rate", rateStr),
		)
		rateStr = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			r.log.Error("ratelimit_default_rate_invalid", zap.Error(err))
			return
		}
	}

	mw := stdlibmw.NewMiddleware(limiter.New(r.store, rate),
		stdlibmw.WithKeyGetter(rateLimitKey),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, req *http.Request) {
			respondErrorJSON(w, req, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded, please slow down", r.log)
		}),
	)
	r.mu.Lock()
	r.current = mw
	r.rate = rateStr
	r.mu.Unlock()

	r.log.Info("ratelimit_loaded", zap.String("rate", rateStr))
}

func rateLimitKey(req *http.Request) string {
	if user := request.UserFromContext(req); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + request.ClientIP(req)
}
