package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tunnelctl/internal/infrastructure/kv"
)

// HealthHandler answers the controller's two unauthenticated liveness
// probes: a bare /ping and a /v1/healthz that also checks the KV store.
type HealthHandler struct {
	idx kv.Index
}

// NewHealthHandler builds a HealthHandler that also probes idx.
func NewHealthHandler(idx kv.Index) *HealthHandler {
	return &HealthHandler{idx: idx}
}

// Ping handles GET /ping.
// @Summary Ping
// @Tags health
// @Produce plain
// @Success 200 {string} string "pong"
// @Router /ping [get]
func (h *HealthHandler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// Healthz handles GET /v1/healthz: it additionally checks the KV store is
// reachable, since that store is the engine's only shared state.
// @Summary Healthz
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /v1/healthz [get]
func (h *HealthHandler) Healthz(c *gin.Context) {
	if _, err := h.idx.Exists(c.Request.Context(), "healthz:probe"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
