package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/garage/pkg/http"
)

// Pinger reports whether the database answers
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// SessionPurger drops sessions past their absolute expiry
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	PurgedSessions int64  `json:"purged_sessions"`
}

// HealthHandler checks the database and sweeps expired sessions on each probe
type HealthHandler struct {
	db       Pinger
	sessions SessionPurger
	logger   *slog.Logger
	timeout  time.Duration
}

func NewHealthHandler(db Pinger, sessions SessionPurger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		sessions: sessions,
		logger:   logger,
		timeout:  2 * time.Second,
	}
}

// Health responds 200 when the database is reachable and 503 otherwise
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
		return
	}

	resp := HealthResponse{Status: "healthy", Database: "up"}

	if h.sessions != nil {
		n, err := h.sessions.PurgeExpired(ctx)
		if err != nil {
			h.logger.Warn("session purge during health check failed", slog.Any("error", err))
		}
		resp.PurgedSessions = n
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
