// Package app wires storage, cache, services and handlers from process configuration.
// Both the API server and the maintenance CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/analytics"
	"github.com/penshort/shortlink/internal/auth"
	"github.com/penshort/shortlink/internal/cache"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/destination"
	"github.com/penshort/shortlink/internal/expiration"
	"github.com/penshort/shortlink/internal/handler"
	"github.com/penshort/shortlink/internal/health"
	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/middleware"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
	"github.com/penshort/shortlink/internal/repository/sqlite"
	"github.com/penshort/shortlink/internal/routing"
	"github.com/penshort/shortlink/internal/service"
	"github.com/penshort/shortlink/internal/token"
	"github.com/penshort/shortlink/internal/utm"
	"github.com/penshort/shortlink/internal/webhook"
)

// App holds the wired components of a running instance.
type App struct {
	Config   *config.Config
	Settings *config.SettingsStore
	Store    repository.Store
	Cache    *cache.Cache
	Metrics  *metrics.InMemoryRecorder
	Tracker  *analytics.Tracker
	// Worker is nil unless Redis is configured and the click worker is enabled.
	Worker *analytics.Worker

	Shortlinks    *service.ShortlinkService
	Redirects     *service.RedirectService
	ParameterSets *service.ParameterSetService
	Targets       *service.TargetService
	Maintenance   *service.MaintenanceService

	logger *zap.Logger
}

// New connects to the configured stores and builds every service.
// Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %s", RedactURL(cfg.DatabaseURL), SanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("connected to database", zap.String("database_url", RedactURL(cfg.DatabaseURL)))

	a := &App{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.NewInMemory(),
		logger:  logger,
	}

	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to Redis %s: %s", RedactURL(cfg.RedisURL), SanitizeError(err, cfg.RedisURL))
		}
		a.Cache = c
		logger.Info("connected to Redis", zap.String("redis_url", RedactURL(cfg.RedisURL)))
	} else {
		logger.Warn("REDIS_URL not set; negative cache, rate limiting and click stream disabled")
	}

	a.Settings, err = config.LoadSettings(cfg.SettingsFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	a.checkAdminKeys()
	return a, nil
}

func (a *App) checkAdminKeys() {
	keys := a.Config.GetAdminAPIKeys()
	if len(keys) == 0 {
		a.logger.Warn("ADMIN_API_KEYS not set; the admin API rejects every request")
		return
	}
	if a.Config.IsDevelopment() {
		return
	}
	for key, name := range keys {
		if !auth.ValidateKeyFormat(key) {
			a.logger.Warn("admin API key was not generated by shortlinkctl gen-key", zap.String("key_name", name))
		}
	}
}

func (a *App) build() error {
	store, settings, cfg, logger := a.Store, a.Settings, a.Config, a.logger

	var negative service.NegativeCache
	var sink analytics.Sink
	sweeperOpts := []expiration.SweeperOption{expiration.WithMetrics(a.Metrics)}
	if a.Cache != nil {
		negative = a.Cache
		sink = analytics.NewPublisher(a.Cache.Client(), logger, a.Metrics)
		sweeperOpts = append(sweeperOpts, expiration.WithLocker(a.Cache))
		if cfg.ClickWorkerEnabled {
			a.Worker = analytics.NewWorker(a.Cache.Client(), store, logger, analytics.NewConsumerID(), a.Metrics)
		}
	}

	tokens := token.NewSimple()
	params := utm.NewResolver(tokens)
	resolver, err := destination.NewResolver(cfg.SiteURL, store, store, params, tokens)
	if err != nil {
		return err
	}
	resolver.SetLogger(logger)
	paths := routing.NewChecker(func() []string { return settings.Current().SiteRoutes }, store)

	a.Tracker = analytics.NewTracker(store, sink, analytics.NewHasher(cfg.IPHashKey), logger, a.Metrics)
	a.Shortlinks = service.NewShortlinkService(store, settings, paths, negative, logger, a.Metrics)
	a.Redirects = service.NewRedirectService(store, resolver, a.Tracker, negative, settings, logger, a.Metrics)
	a.ParameterSets = service.NewParameterSetService(store, params, logger)
	a.Targets = service.NewTargetService(store, logger)

	bulk := service.NewBulkService(store, a.Shortlinks, settings, cfg.SweepWorkers, logger)
	sweeper := expiration.NewSweeper(store, cfg.SweepWorkers, logger, sweeperOpts...)
	checker := health.NewChecker(store, paths, resolver, health.Options{
		RPS:         cfg.HealthCheckRPS,
		Concurrency: cfg.HealthCheckConcurrency,
		Client:      &http.Client{Timeout: cfg.WriteTimeout},
	}, logger, a.Metrics)
	a.Maintenance = service.NewMaintenanceService(sweeper, a.Tracker, checker, bulk, settings, logger)

	if cfg.NotifyWebhookURL != "" {
		notifier, err := a.newNotifier()
		if err != nil {
			return err
		}
		a.Maintenance.SetNotifier(notifier)
	}
	return nil
}

func (a *App) newNotifier() (*webhook.Notifier, error) {
	cfg := a.Config
	if err := webhook.ValidateTargetURL(cfg.NotifyWebhookURL, cfg.IsDevelopment()); err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
	}
	if cfg.NotifyWebhookSecret == "" {
		return nil, errors.New("NOTIFY_WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set")
	}

	var events []model.EventType
	for _, name := range cfg.NotifyWebhookEvents {
		et := model.EventType(strings.TrimSpace(name))
		if !model.IsValidEventType(et) {
			return nil, fmt.Errorf("unknown event type %q in NOTIFY_WEBHOOK_EVENTS", name)
		}
		events = append(events, et)
	}

	a.logger.Info("maintenance webhook enabled", zap.String("target_host", webhook.ExtractHost(cfg.NotifyWebhookURL)))
	return webhook.NewNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret, events, a.logger, a.Metrics), nil
}

// Router builds the HTTP handler serving redirects and the admin API.
func (a *App) Router() http.Handler {
	var limiter middleware.IPLimiter
	var pinger handler.Pinger
	if a.Cache != nil {
		limiter = a.Cache
		pinger = a.Cache
	}

	cfg := a.Config
	return handler.NewRouter(handler.Routes{
		Health:        handler.NewHealthHandler(a.Store, pinger),
		Redirect:      handler.NewRedirectHandler(a.Redirects, a.Settings, a.logger),
		Shortlinks:    handler.NewShortlinkHandler(a.Shortlinks, a.Tracker, cfg.SiteURL, a.logger),
		ParameterSets: handler.NewParameterSetHandler(a.ParameterSets, a.logger),
		Targets:       handler.NewTargetHandler(a.Targets, a.Shortlinks, cfg.SiteURL, a.logger),
		Reports:       handler.NewReportHandler(a.Tracker, a.logger),
		Maintenance:   handler.NewMaintenanceHandler(a.Maintenance, a.logger),
		Settings:      handler.NewSettingsHandler(a.Settings, a.logger),
		Metrics:       handler.NewMetricsHandler(a.Metrics),
		APIKeys:       cfg.GetAdminAPIKeys(),
		CORSOrigins:   cfg.CORSAllowedOrigins,
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:  a.logger,
			Limiter: limiter,
			Enabled: cfg.RateLimitRedirectEnabled,
			RPS:     cfg.RateLimitRedirectRPS,
			Burst:   cfg.RateLimitRedirectBurst,
		},
	}, a.logger)
}

// Close flushes pending click writes and closes the cache and store.
func (a *App) Close() {
	if a.Tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		if err := a.Tracker.Shutdown(ctx); err != nil {
			a.logger.Warn("click tracker shutdown incomplete", zap.Error(err))
		}
		cancel()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn("failed to close Redis", zap.Error(err))
		}
	}
	a.Store.Close()
}

// OpenStore picks the backend from the URL: SQLite or libsql for file paths and
// sqlite:/libsql: URLs, PostgreSQL for postgres:// URLs.
func OpenStore(ctx context.Context, databaseURL string) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch {
	case sqlite.IsURL(databaseURL):
		store, err = sqlite.New(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err = repository.New(ctx, databaseURL)
	default:
		return nil, errors.New("unsupported database URL scheme")
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// RedactURL strips the password from a connection URL.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// SanitizeError replaces each secret in err's message with its redacted form.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := RedactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
