// Package api is the orchestrator's gin-based operator HTTP surface:
// spawn/start/shutdown/restart/query endpoints plus template management,
// grounded on the teacher's internal/api/handlers.go and router.go.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/numdrassl/servermanager/internal/orchestrator/apierr"
	"github.com/numdrassl/servermanager/internal/orchestrator/facade"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

// Handler exposes the façade's operations as JSON HTTP endpoints.
type Handler struct {
	manager *facade.Manager
}

// NewHandler builds a Handler backed by manager.
func NewHandler(manager *facade.Manager) *Handler {
	return &Handler{manager: manager}
}

func statusFor(err error) int {
	switch apierr.KindOf(err) {
	case apierr.Precondition:
		return http.StatusConflict
	case apierr.IO, apierr.Runtime:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type instanceView struct {
	ServerID   string `json:"serverId"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Port       int    `json:"port"`
	MaxPlayers int    `json:"maxPlayers"`
	Players    int    `json:"players"`
	Template   string `json:"template,omitempty"`
}

func toView(inst *model.Instance) instanceView {
	v := instanceView{
		ServerID:   inst.ServerID,
		Type:       string(inst.Type),
		Status:     string(inst.Status),
		Port:       inst.Port,
		MaxPlayers: inst.MaxPlayers,
		Players:    inst.PlayerCount(),
	}
	if inst.Template != nil {
		v.Template = inst.Template.Name
	}
	return v
}

// ListServers handles GET /api/servers.
func (h *Handler) ListServers(c *gin.Context) {
	instances := h.manager.All()
	views := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, toView(inst))
	}
	c.JSON(http.StatusOK, gin.H{"servers": views})
}

// GetServer handles GET /api/servers/:id.
func (h *Handler) GetServer(c *gin.Context) {
	inst := h.manager.Get(c.Param("id"))
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}
	c.JSON(http.StatusOK, toView(inst))
}

// Stats handles GET /api/fleet/stats.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Stats())
}

type spawnDynamicRequest struct {
	Template   string `json:"template" binding:"required"`
	MaxPlayers int    `json:"maxPlayers"`
}

// SpawnDynamic handles POST /api/servers/dynamic.
func (h *Handler) SpawnDynamic(c *gin.Context) {
	var req spawnDynamicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := h.manager.SpawnDynamic(c.Request.Context(), req.Template, req.MaxPlayers)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, toView(inst))
}

// StartStatic handles POST /api/servers/:id/start.
func (h *Handler) StartStatic(c *gin.Context) {
	inst, err := h.manager.StartStatic(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, toView(inst))
}

// Shutdown handles POST /api/servers/:id/shutdown.
func (h *Handler) Shutdown(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := h.manager.ShutdownInstance(c.Request.Context(), c.Param("id"), force); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// Restart handles POST /api/servers/:id/restart.
func (h *Handler) Restart(c *gin.Context) {
	inst, err := h.manager.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, toView(inst))
}

// Heartbeat handles POST /api/servers/:id/heartbeat, a backend process's
// liveness self-report consumed by the periodic health probe.
func (h *Handler) Heartbeat(c *gin.Context) {
	if !h.manager.Supervisor.Heartbeat(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// FindAvailable handles GET /api/templates/:name/available, used by an
// external proxy integration to pick a backend to route a connecting
// player to.
func (h *Handler) FindAvailable(c *gin.Context) {
	inst := h.manager.FindAvailable(c.Param("name"))
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no available instance"})
		return
	}
	c.JSON(http.StatusOK, toView(inst))
}
