package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/product-info-extractor/internal/api"
	"github.com/maltedev/product-info-extractor/internal/app"
	"github.com/maltedev/product-info-extractor/internal/config"
	"github.com/maltedev/product-info-extractor/internal/logger"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
		stdio      = flag.Bool("stdio", false, "Serve JSON-RPC on stdin/stdout instead of HTTP")
	)
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout carries protocol messages in stdio mode
	logOut := os.Stdout
	if *stdio {
		logOut = os.Stderr
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, logOut)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	a.StartRelay(ctx)
	a.WarmUp()

	dispatcher := api.NewDispatcher(a.Service, log)

	if *stdio {
		log.Info("product info extractor running on stdio")
		if err := api.ServeStdio(ctx, dispatcher, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("stdio server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serveHTTP(ctx, cfg, a, dispatcher, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, a *app.App, dispatcher *api.Dispatcher, log *slog.Logger) error {
	health := api.HealthInfo{
		BrowserInitialized: a.Session.Initialized,
		CacheBackend:       cfg.Cache.Backend,
		Started:            time.Now(),
	}
	if a.Relay != nil {
		health.Outbox = a.Relay
	}
	if a.Snapshots != nil {
		health.Snapshots = a.Snapshots
	}

	var limiter *ratelimit.TokenBucket
	if cfg.RateLimit.PerSecond > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	handlers := api.NewHandlers(dispatcher, health, log)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        limiter,
		AccessLog:      true,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"mcp_endpoint", "/mcp",
		"health", "/health",
		"cache_backend", cfg.Cache.Backend,
		"archive", a.Relay != nil,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info("server stopped")
	return nil
}
