package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const healthCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse - body of /healthz.
type HealthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

type healthHandler struct {
	logger    *slog.Logger
	storage   pinger
	startTime time.Time
}

func newHealthHandler(logger *slog.Logger, storage pinger) *healthHandler {
	return &healthHandler{
		logger:    logger,
		storage:   storage,
		startTime: time.Now(),
	}
}

func (that *healthHandler) Healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(that.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"storage": "healthy"},
	}
	statusCode := http.StatusOK

	if err := that.storage.Ping(ctx); err != nil {
		that.logger.Warn("storage health check failed", "error", err)

		response.Status = "unhealthy"
		response.Checks["storage"] = "unhealthy: " + err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		that.logger.Error("failed to write health response", "error", err)
	}
}
