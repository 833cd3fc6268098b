// Package app assembles the extraction stack from configuration. Both
// binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/cache"
	"github.com/maltedev/product-info-extractor/internal/config"
	"github.com/maltedev/product-info-extractor/internal/database"
	"github.com/maltedev/product-info-extractor/internal/events"
	"github.com/maltedev/product-info-extractor/internal/extractor"
	"github.com/maltedev/product-info-extractor/internal/profile"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
	"github.com/maltedev/product-info-extractor/internal/sites"
)

// App is the wired extraction stack. Close releases everything it opened.
type App struct {
	Session  *browser.Session
	Profiles *profile.Registry
	Service  *extractor.Service
	Cache    *cache.Cache
	// Relay and Snapshots are nil unless the archive is enabled.
	Relay     *database.Relay
	Snapshots *database.SnapshotRepository

	redis   *redis.Client
	logger  *slog.Logger
	closers []func() error
}

// New wires the stack. The browser is not launched; call WarmUp or let the
// first extraction do it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}

	a.Session = browser.NewSession(BrowserOptions(cfg), logger)
	a.closers = append(a.closers, a.Session.Close)

	pacer := ratelimit.NewPacer()

	var loader profile.Loader
	if cfg.Sites.Dir != "" {
		loader = profile.NewDirLoader(cfg.Sites.Dir)
		logger.Info("loading site profiles from directory", "dir", cfg.Sites.Dir)
	}
	a.Profiles = profile.NewRegistry(loader, logger)
	sites.Register(a.Profiles, pacer, logger)

	store, err := a.cacheStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = cache.New(store, logger)

	ex := extractor.New(a.Session, a.Profiles, pacer, ExtractorSettings(cfg), logger)
	a.Service = extractor.NewService(ex, a.Cache, cfg.Cache.TTL(), logger)

	if cfg.Database.Enabled() {
		if err := a.enableArchive(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// BrowserOptions maps configuration onto the session's launch options.
func BrowserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	if cfg.Browser.Timeout > 0 {
		opts.Timeout = cfg.Browser.Timeout
	}
	if cfg.Browser.ViewportWidth > 0 && cfg.Browser.ViewportHeight > 0 {
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
	}
	if cfg.Browser.Locale != "" {
		opts.Locale = cfg.Browser.Locale
	}
	if cfg.Browser.TimezoneID != "" {
		opts.TimezoneID = cfg.Browser.TimezoneID
	}
	if cfg.Browser.AcceptLanguage != "" {
		opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	}
	opts.Proxy = browser.Proxy{
		Server:   cfg.Proxy.Server,
		Username: cfg.Proxy.Username,
		Password: cfg.Proxy.Password,
	}
	return opts
}

// ExtractorSettings maps configuration onto the attempt loop's timings.
// Zero values keep the defaults.
func ExtractorSettings(cfg *config.Config) extractor.Settings {
	s := extractor.DefaultSettings()
	e := cfg.Extractor
	if e.MaxAttempts > 0 {
		s.MaxAttempts = e.MaxAttempts
	}
	setDuration(&s.BackoffStep, e.BackoffStep)
	setDuration(&s.PreNavMin, e.PreNavMin)
	setDuration(&s.PreNavMax, e.PreNavMax)
	setDuration(&s.Settle, e.Settle)
	setDuration(&s.AfterScroll, e.AfterScroll)
	if e.SnippetLength > 0 {
		s.SnippetLength = e.SnippetLength
	}
	return s
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func (a *App) cacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client := a.redisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.logger.Info("using redis cache", "addr", cfg.Redis.Addr)
		return cache.NewRedisStore(client, cfg.Cache.Prefix), nil
	case config.CacheMemcache:
		store := cache.NewMemcacheStore(cfg.Memcache.Servers...)
		if err := store.Ping(); err != nil {
			a.logger.Warn("memcached not reachable, lookups will miss until it is", "servers", cfg.Memcache.Servers, "error", err)
		}
		a.logger.Info("using memcache cache", "servers", cfg.Memcache.Servers)
		return store, nil
	case config.CacheMemory, "":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// redisClient is shared by the cache and the outbox relay.
func (a *App) redisClient(cfg *config.Config) *redis.Client {
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
	}
	return a.redis
}

func (a *App) enableArchive(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	a.Service.WithRecorder(events.NewPublisher(db, a.logger))
	a.Snapshots = database.NewSnapshotRepository(db)

	client := a.redisClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		a.logger.Warn("redis not reachable, outbox events will queue until it is", "addr", cfg.Redis.Addr, "error", err)
	}
	a.Relay = database.NewRelay(db, client, a.logger, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
	})

	a.logger.Info("extraction archive enabled", "host", cfg.Database.Host, "database", cfg.Database.Name)
	return nil
}

// StartRelay publishes archived events until ctx is done. It is a no-op
// without an archive.
func (a *App) StartRelay(ctx context.Context) {
	if a.Relay == nil {
		return
	}
	go func() {
		if err := a.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("relay stopped with error", "error", err)
		}
	}()
}

// WarmUp launches the browser in the background so the first call does not
// pay for it. A failure is logged; the next extraction retries the launch.
func (a *App) WarmUp() {
	go func() {
		a.logger.Info("pre-initializing browser session")
		if err := a.Session.Init(); err != nil {
			a.logger.Warn("failed to pre-initialize browser session, will retry on first request", "error", err)
			return
		}
		a.logger.Info("browser session pre-initialized", "version", a.Session.Version())
	}()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
