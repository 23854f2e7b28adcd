package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/lifecycle"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/session"
	"github.com/Veirt/weathr/internal/traffic"
)

// Session is the part of session.Session the status server reads and drives.
type Session interface {
	Snapshot() session.Snapshot
	Refresh() bool
	Simulated() bool
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// Outcomes feeds the degraded check; nil disables it.
	Outcomes           *traffic.Tracker
	DegradedWindow     time.Duration
	DegradedFailurePct int
	StartTime          time.Time

	// CachePing, when set, is called to check cache reachability. Used for memcached and redis.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for the status server handlers.
type Handler struct {
	session          Session
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

func NewHandler(sess Session, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		session:      sess,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles GET /weather. It returns the snapshot the renderer is showing.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	if snap.Weather == nil {
		writeError(w, r, http.StatusServiceUnavailable, "WEATHER_LOADING", "No weather reading yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PostRefresh handles POST /refresh, the HTTP equivalent of pressing 'r'.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Shutting down")
		return
	}
	if h.session.Simulated() {
		writeError(w, r, http.StatusConflict, "SIMULATED", "Simulation mode has nothing to refresh")
		return
	}
	if !h.session.Refresh() {
		writeError(w, r, http.StatusConflict, "NOT_RUNNING", "No refresh task is running")
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).Info("Manual refresh requested over HTTP")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok":         true,
		"refreshing": true,
	})
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	result := h.computeHealthStatus(snap)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("Health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weather": "healthy"}
	switch {
	case snap.Simulated:
		checks["weather"] = "simulated"
	case snap.Offline:
		checks["weather"] = "offline"
	case snap.Weather == nil:
		checks["weather"] = "loading"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weathr",
		"phase":     lifecycle.CurrentPhase().String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptime_seconds"] = int(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > offline > degraded > healthy.
func (h *Handler) computeHealthStatus(snap session.Snapshot) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if snap.Weather == nil {
		return healthResult{"starting", http.StatusServiceUnavailable, "no_reading"}
	}
	if snap.Offline {
		return healthResult{"offline", http.StatusServiceUnavailable, "last_refresh_failed"}
	}
	if h.healthConfig != nil && h.healthConfig.Outcomes != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedFailurePct > 0 {
		failures, total := h.healthConfig.Outcomes.FailureRate(h.healthConfig.DegradedWindow)
		if total > 0 && failures*100/total >= h.healthConfig.DegradedFailurePct {
			return healthResult{"degraded", http.StatusOK, "failure_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body carrying the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
