package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/api/middleware"
	"github.com/funnelkit/provision-api/internal/api/shared"
	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/health"
	"github.com/funnelkit/provision-api/internal/store"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// QueueMetrics is the slice of the queue the system handler needs.
type QueueMetrics interface {
	Metrics(ctx context.Context) (map[domain.JobStatus]int, error)
}

// ModeController reads and switches the system mode.
type ModeController interface {
	Current(ctx context.Context) domain.SystemMode
	Switch(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID, reason string) error
}

// HealthChecker runs the probe set.
type HealthChecker interface {
	CheckHealth(ctx context.Context) health.Result
}

// SystemHandler serves the operator surface: mode switch, queue
// metrics, the health log feed, and on-demand health checks.
type SystemHandler struct {
	mode      ModeController
	queue     QueueMetrics
	logs      store.HealthLogStore
	monitor   HealthChecker
	validator *validator.Validate
	logger    *slog.Logger
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(mode ModeController, queue QueueMetrics, logs store.HealthLogStore, monitor HealthChecker, v *validator.Validate, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		mode:      mode,
		queue:     queue,
		logs:      logs,
		monitor:   monitor,
		validator: v,
		logger:    logger.With(slog.String("handler", "system")),
	}
}

// GetMode handles GET /api/system/mode.
func (h *SystemHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	mode := h.mode.Current(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, ModeResponse{Mode: string(mode)})
}

// UpdateMode handles POST /api/system/mode. Restricted to admins by the
// route middleware.
func (h *SystemHandler) UpdateMode(w http.ResponseWriter, r *http.Request) {
	var req UpdateModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	mode, err := domain.ParseSystemMode(req.Mode)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	actorID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.mode.Switch(r.Context(), mode, actorID, req.Reason); err != nil {
		if errors.Is(err, domain.ErrInvalidMode) {
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to switch system mode",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to switch system mode")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ModeResponse{Mode: string(mode)})
}

// GetMetrics handles GET /api/system/metrics.
func (h *SystemHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Metrics(r.Context())
	if err != nil {
		h.logger.Error("failed to read queue metrics",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to read queue metrics")
		return
	}

	jobs := make(map[string]int, len(counts))
	for status, n := range counts {
		jobs[string(status)] = n
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MetricsResponse{Jobs: jobs})
}

// GetLogs handles GET /api/system/logs?limit=N.
func (h *SystemHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries, err := h.logs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read health logs",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to read health logs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, entries)
}

// GetHealth handles GET /api/system/health, running the probe set on
// demand. Unhealthy results report 503 so load balancers can act on
// the status code alone.
func (h *SystemHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, result)
}
