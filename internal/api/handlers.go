package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBodyBytes bounds a single JSON-RPC message.
const maxBodyBytes = 1 << 20

// Outbox thresholds above which /health degrades.
const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

// OutboxStats reports the archive relay backlog. *database.Relay
// implements it.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// SnapshotCounter reports archived extractions per site profile.
// *database.SnapshotRepository implements it.
type SnapshotCounter interface {
	CountBySite(ctx context.Context) (map[string]int, error)
}

// HealthInfo is what /health reads from the running process.
type HealthInfo struct {
	BrowserInitialized func() bool
	CacheBackend       string
	Outbox             OutboxStats
	Snapshots          SnapshotCounter
	Started            time.Time
}

type Handlers struct {
	dispatcher *Dispatcher
	health     HealthInfo
	logger     *slog.Logger
}

func NewHandlers(dispatcher *Dispatcher, health HealthInfo, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if health.Started.IsZero() {
		health.Started = time.Now()
	}
	return &Handlers{
		dispatcher: dispatcher,
		health:     health,
		logger:     logger.With("component", "api"),
	}
}

// MCP handles one JSON-RPC message posted to /mcp.
func (h *Handlers) MCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error", nil))
		return
	}

	h.logger.Debug("mcp request", "user_agent", r.UserAgent(), "session_id", r.Header.Get("Mcp-Session-Id"))

	resp := h.dispatcher.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// MCPMethodNotAllowed rejects GET /mcp so streaming clients fall back to POST.
func (h *Handlers) MCPMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	h.respondJSON(w, http.StatusMethodNotAllowed, errorResponse(nil, CodeServerError,
		"Method Not Allowed. Use POST for MCP requests.",
		map[string]any{"allowed_methods": []string{http.MethodPost}, "endpoint": "/mcp"}))
}

// LegacySSE answers the retired SSE endpoint.
func (h *Handlers) LegacySSE(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusGone, errorResponse(nil, CodeGone,
		"SSE endpoint is deprecated. Use POST /mcp instead.",
		map[string]any{"new_endpoint": "/mcp", "method": http.MethodPost}))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	initialized := false
	if h.health.BrowserInitialized != nil {
		initialized = h.health.BrowserInitialized()
	}

	health := map[string]any{
		"status":                "ok",
		"extractor_initialized": initialized,
		"cache_backend":         h.health.CacheBackend,
		"uptime":                time.Since(h.health.Started).Seconds(),
		"timestamp":             time.Now().UTC(),
	}

	status := http.StatusOK
	if h.health.Outbox != nil {
		pending, err := h.health.Outbox.PendingCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count pending outbox events", "error", err)
		}
		deadLetter, err := h.health.Outbox.DeadLetterCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count dead letter events", "error", err)
		}

		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > deadLetterErrorThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	if h.health.Snapshots != nil {
		counts, err := h.health.Snapshots.CountBySite(r.Context())
		if err != nil {
			h.logger.Warn("failed to count archived snapshots", "error", err)
		} else {
			health["snapshots"] = counts
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
