package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// EngineHealth reports the engine's reachability as last observed.
type EngineHealth interface {
	IsHealthy() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	engine EngineHealth
}

// NewHealthHandler returns a HealthHandler.
func NewHealthHandler(engine EngineHealth) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Liveness handles GET /healthz: the process is up.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz: the service can reach its engine.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.engine != nil && !h.engine.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "engine": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
