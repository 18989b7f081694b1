package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/numdrassl/servermanager/internal/orchestrator/facade"
)

// TemplateHandler exposes template discovery and scaffolding.
type TemplateHandler struct {
	manager *facade.Manager
}

// NewTemplateHandler builds a TemplateHandler backed by manager.
func NewTemplateHandler(manager *facade.Manager) *TemplateHandler {
	return &TemplateHandler{manager: manager}
}

type templateView struct {
	Name       string   `json:"name"`
	MaxPlayers int      `json:"maxPlayers"`
	Memory     string   `json:"memoryAllocation"`
	Valid      bool     `json:"valid"`
	Warnings   []string `json:"warnings,omitempty"`
}

// List handles GET /api/templates.
func (h *TemplateHandler) List(c *gin.Context) {
	templates := h.manager.Templates.All()
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, templateView{
			Name:       t.Name,
			MaxPlayers: t.Metadata.MaxPlayers,
			Memory:     t.Metadata.MemoryAllocation,
			Valid:      t.Valid,
			Warnings:   t.ValidationErrors,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": views})
}

type createTemplateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /api/templates, scaffolding a new template
// directory with a minimal manifest and startup script.
func (h *TemplateHandler) Create(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.CreateTemplate(req.Name); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusCreated)
}

// Reload handles POST /api/templates/reload, re-scanning the templates
// root for manifest changes made on disk since the last load.
func (h *TemplateHandler) Reload(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"loaded": h.manager.Templates.Reload()})
}
