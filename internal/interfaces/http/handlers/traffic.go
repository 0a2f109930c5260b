// Package handlers holds the HTTP handlers for the traffic controller's
// API surface: ping, health, and the two traffic lifecycle operations.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apptraffic "tunnelctl/internal/application/traffic"
	domain "tunnelctl/internal/domain/traffic"
	"tunnelctl/internal/interfaces/http/respond"
	appErrors "tunnelctl/internal/shared/errors"
	"tunnelctl/internal/shared/logger"
)

// TrafficHandler exposes the Traffic Manager over HTTP.
type TrafficHandler struct {
	manager *apptraffic.Manager
	log     logger.Interface
}

// NewTrafficHandler builds a TrafficHandler over manager.
func NewTrafficHandler(manager *apptraffic.Manager, log logger.Interface) *TrafficHandler {
	return &TrafficHandler{manager: manager, log: log}
}

type updateTrafficRequest struct {
	NodeName string         `json:"node_name" binding:"required"`
	Service  domain.Service `json:"service" binding:"required"`
}

// Update handles POST /v1/traffic.
// @Summary Update traffic
// @Tags traffic
// @Accept json
// @Produce json
// @Param body body updateTrafficRequest true "node name and service definition"
// @Success 200 {object} map[string]string
// @Failure 400 {string} string
// @Security BearerAuth
// @Router /v1/traffic [post]
func (h *TrafficHandler) Update(c *gin.Context) {
	var req updateTrafficRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, appErrors.NewBadRequestError("invalid request body", err.Error()))
		return
	}

	addrs, err := h.manager.UpdateTraffic(c.Request.Context(), req.NodeName, &req.Service)
	if err != nil {
		h.log.Warnw("update_traffic failed", "error", err, "traffic", req.Service.Traffic)
		respond.Error(c, err)
		return
	}

	respond.JSON(c, http.StatusOK, addrs)
}

type deleteTrafficRequest struct {
	TrafficID string `json:"traffic_id" binding:"required"`
}

type deleteTrafficResponse struct {
	TrafficID  string            `json:"traffic_id"`
	RemoteAddr map[string]string `json:"remote_addr,omitempty"`
}

type getTrafficResponse struct {
	TrafficID  string            `json:"traffic_id"`
	RemoteAddr map[string]string `json:"remote_addr,omitempty"`
	Working    int               `json:"working"`
}

// Delete handles DELETE /v1/traffic.
// @Summary Delete traffic
// @Tags traffic
// @Accept json
// @Produce json
// @Param body body deleteTrafficRequest true "traffic id to delete"
// @Success 200 {object} deleteTrafficResponse
// @Failure 400 {string} string
// @Security BearerAuth
// @Router /v1/traffic [delete]
func (h *TrafficHandler) Delete(c *gin.Context) {
	var req deleteTrafficRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, appErrors.NewBadRequestError("invalid request body", err.Error()))
		return
	}

	remoteAddr, err := h.manager.DeleteTraffic(c.Request.Context(), req.TrafficID)
	if err != nil {
		h.log.Warnw("delete_traffic failed", "error", err, "traffic", req.TrafficID)
		respond.Error(c, err)
		return
	}

	respond.JSON(c, http.StatusOK, deleteTrafficResponse{TrafficID: req.TrafficID, RemoteAddr: remoteAddr})
}

// Get handles GET /v1/traffic/:traffic_id, a read-only inspection
// endpoint: the stored remote_addr map plus the current working proxy
// count, a natural complement to create/delete.
// @Summary Get traffic
// @Tags traffic
// @Produce json
// @Param traffic_id path string true "traffic id"
// @Success 200 {object} getTrafficResponse
// @Failure 400 {string} string
// @Security BearerAuth
// @Router /v1/traffic/{traffic_id} [get]
func (h *TrafficHandler) Get(c *gin.Context) {
	trafficID := c.Param("traffic_id")
	if trafficID == "" {
		respond.Error(c, appErrors.NewBadRequestError("traffic_id is required"))
		return
	}

	remoteAddr, working, ok, err := h.manager.GetTraffic(c.Request.Context(), trafficID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !ok {
		respond.Error(c, appErrors.NewBadRequestError("unknown traffic_id"))
		return
	}

	respond.JSON(c, http.StatusOK, getTrafficResponse{TrafficID: trafficID, RemoteAddr: remoteAddr, Working: working})
}
