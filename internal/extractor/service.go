package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/maltedev/product-info-extractor/internal/cache"
	"github.com/maltedev/product-info-extractor/internal/models"
)

const DefaultCacheTTL = 30 * time.Minute

// RecordExtractor produces raw records. *Extractor implements it.
type RecordExtractor interface {
	Extract(ctx context.Context, rawURL string) (*models.RawProductRecord, error)
}

// Recorder receives every freshly computed record. Failures are logged and
// do not affect the caller.
type Recorder interface {
	Record(ctx context.Context, rec *models.RawProductRecord) error
}

type Options struct {
	Compact bool
	// Refresh drops cached results for the URL, both projections, before
	// extracting.
	Refresh bool
}

// Service is the operation exposed to callers: extraction with result
// caching and the compact projection.
type Service struct {
	extractor RecordExtractor
	cache     *cache.Cache
	ttl       time.Duration
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(ex RecordExtractor, c *cache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(cache.NewMemoryStore(), logger)
	}
	return &Service{
		extractor: ex,
		cache:     c,
		ttl:       ttl,
		logger:    logger.With("component", "service"),
		now:       time.Now,
	}
}

// WithRecorder attaches an archive for fresh results.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Extract returns the JSON result for rawURL, compact or full. Results are
// served from the cache within the TTL. Every failure is an
// *ExtractionError.
func (s *Service) Extract(ctx context.Context, rawURL string, opts Options) (json.RawMessage, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, s.fail(rawURL, err)
	}

	if opts.Refresh {
		s.invalidate(ctx, rawURL)
	}

	key := cache.Key(rawURL, opts.Compact)
	value, hit, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) ([]byte, error) {
		return s.compute(ctx, rawURL, opts)
	})
	if err != nil {
		return nil, s.fail(rawURL, err)
	}

	if hit {
		s.logger.Info("cache hit", "url", rawURL, "compact", opts.Compact)
	}
	return json.RawMessage(value), nil
}

func (s *Service) invalidate(ctx context.Context, rawURL string) {
	for _, compact := range []bool{true, false} {
		if err := s.cache.Invalidate(ctx, cache.Key(rawURL, compact)); err != nil {
			s.logger.Warn("failed to invalidate cache entry", "url", rawURL, "compact", compact, "error", err)
		}
	}
}

func (s *Service) compute(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	rec, err := s.extractor.Extract(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, rec); err != nil {
			s.logger.Warn("failed to archive extraction", "url", rawURL, "error", err)
		}
	}

	var result any = rec
	if opts.Compact {
		result = models.Compact(rec)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func (s *Service) fail(rawURL string, err error) *ExtractionError {
	s.logger.Error("extraction failed", "url", rawURL, "error", err)
	return &ExtractionError{URL: rawURL, Err: err, Time: s.now().UTC()}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
