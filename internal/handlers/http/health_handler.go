package http

import (
	"net/http"

	"streamcast/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports how many signaling connections are attached.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checker *monitoring.HealthChecker
	relay   ConnectionCounter
}

func NewHealthHandler(checker *monitoring.HealthChecker, relay ConnectionCounter) *HealthHandler {
	return &HealthHandler{checker: checker, relay: relay}
}

// Health runs all registered checks and reports the aggregate.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":      status.Status,
		"timestamp":   status.Timestamp,
		"checks":      status.Checks,
		"connections": h.relay.ConnectionCount(),
	})
}
