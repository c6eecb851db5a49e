package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// TenantHandler is the platform-level console: creating, editing, and
// deactivating restaurants. super_admin only — this is the one surface
// that cuts across every tenant.
type TenantHandler struct {
	repo   repository.TenantRepository
	logger *zap.Logger
}

func NewTenantHandler(repo repository.TenantRepository, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{repo: repo, logger: logger}
}

type tenantRequest struct {
	Name             string       `json:"name" binding:"required"`
	Subdomain        string       `json:"subdomain"`
	Theme            models.Theme `json:"theme"`
	WhatsAppTemplate string       `json:"whatsapp_template"`
	WhatsAppPrefix   string       `json:"whatsapp_prefix"`
}

// Create handles POST /super/tenants.
func (h *TenantHandler) Create(c *gin.Context) {
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Subdomain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subdomain is required"})
		return
	}

	created, err := h.repo.Create(c.Request.Context(), &models.Tenant{
		Name:             req.Name,
		Subdomain:        req.Subdomain,
		Theme:            req.Theme,
		WhatsAppTemplate: req.WhatsAppTemplate,
		WhatsAppPrefix:   req.WhatsAppPrefix,
	})
	if err != nil {
		// Most likely cause: subdomain already taken by an active tenant
		// (the partial unique index). Report it as a conflict.
		h.logger.Warn("failed to create tenant", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "subdomain already in use"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// List handles GET /super/tenants.
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tenants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tenants"})
		return
	}

	c.JSON(http.StatusOK, tenants)
}

// Update handles PUT /super/tenants/:id — name, theme, and template only.
// The routable key never changes through this path.
func (h *TenantHandler) Update(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.repo.Update(c.Request.Context(), &models.Tenant{
		ID:               tenantID,
		Name:             req.Name,
		Theme:            req.Theme,
		WhatsAppTemplate: req.WhatsAppTemplate,
		WhatsAppPrefix:   req.WhatsAppPrefix,
	})
	if err != nil {
		h.logger.Error("failed to update tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tenant"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Deactivate handles POST /super/tenants/:id/deactivate.
//
// Deactivation takes effect on the next request: the resolver only matches
// active tenants, so the subdomain stops resolving, new checkouts stop,
// and tenant-scoped access is revoked — all through the same flag.
func (h *TenantHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Activate handles POST /super/tenants/:id/activate.
func (h *TenantHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *TenantHandler) setActive(c *gin.Context, active bool) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	if err := h.repo.SetActive(c.Request.Context(), tenantID, active); err != nil {
		h.logger.Error("failed to set tenant active flag", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tenant"})
		return
	}

	c.Status(http.StatusNoContent)
}
