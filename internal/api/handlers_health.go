// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/filedrop/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions *session.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions *session.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions.Count()
	}
	return c.JSON(http.StatusOK, body)
}
