package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	DB Pinger
}

// Health reports that the process is up.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready additionally checks the database.
func (h *HealthHandler) Ready(c echo.Context) error {
	if h.DB == nil {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "database": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "database": "ok"})
}
