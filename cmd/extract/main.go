package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/product-info-extractor/internal/app"
	"github.com/maltedev/product-info-extractor/internal/config"
	"github.com/maltedev/product-info-extractor/internal/extractor"
	"github.com/maltedev/product-info-extractor/internal/logger"
	"github.com/maltedev/product-info-extractor/internal/models"
)

func main() {
	var (
		url        = flag.String("url", "", "Product URL to extract")
		compact    = flag.Bool("compact", true, "Print the compact projection")
		refresh    = flag.Bool("refresh", false, "Ignore cached results")
		configPath = flag.String("config", "", "Path to config file")
		headful    = flag.Bool("headful", false, "Show the browser window")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "Please provide a URL with -url")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *headful {
		cfg.Browser.Headless = false
	}
	// A single run has nothing to share with other processes.
	cfg.Cache.Backend = config.CacheMemory

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	code := run(ctx, a.Service, *url, extractor.Options{Compact: *compact, Refresh: *refresh})
	if err := a.Close(); err != nil {
		log.Warn("failed to close browser", "error", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, svc *extractor.Service, url string, opts extractor.Options) int {
	start := time.Now()
	result, err := svc.Extract(ctx, url, opts)
	if err != nil {
		payload := models.ErrorPayload{Error: err.Error(), URL: url, Timestamp: time.Now().UTC()}
		var exErr *extractor.ExtractionError
		if errors.As(err, &exErr) {
			payload = exErr.Payload()
		}
		printJSON(payload)
		return 1
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		os.Stdout.Write(result)
	} else {
		buf.WriteTo(os.Stdout)
	}
	fmt.Println()
	fmt.Fprintf(os.Stderr, "extracted in %s\n", time.Since(start).Round(time.Millisecond))
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
	}
}
