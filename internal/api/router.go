package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

type RouterOptions struct {
	AllowedOrigins []string
	// RequestTimeout bounds one request, extraction included.
	RequestTimeout time.Duration
	// Limiter throttles POST /mcp. Nil disables throttling.
	Limiter *ratelimit.TokenBucket
	// AccessLog enables chi's request logger. It writes to stdout, so stdio
	// deployments leave it off.
	AccessLog bool
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Cache-Control", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/sse", h.LegacySSE)

	r.Route("/mcp", func(r chi.Router) {
		r.Get("/", h.MCPMethodNotAllowed)
		r.With(h.RateLimit(opts.Limiter)).Post("/", h.MCP)
	})

	return r
}

// RateLimit answers 429 once the bucket is empty.
func (h *Handlers) RateLimit(limiter *ratelimit.TokenBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				h.logger.Warn("rate limit exceeded", "remote_addr", r.RemoteAddr)
				w.Header().Set("Retry-After", "1")
				h.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
