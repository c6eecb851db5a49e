package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/middleware"
	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

var errNegativePrice = errors.New("price must not be negative")

// MenuHandler serves the public menu and the admin menu CRUD. Both sides
// are scoped by the resolved tenant — the Host header picks the menu.
type MenuHandler struct {
	repo   repository.MenuRepository
	logger *zap.Logger
}

func NewMenuHandler(repo repository.MenuRepository, logger *zap.Logger) *MenuHandler {
	return &MenuHandler{repo: repo, logger: logger}
}

// Browse handles GET /menu — the public, unauthenticated menu with the
// tenant's branding alongside, so one request paints the storefront.
func (h *MenuHandler) Browse(c *gin.Context) {
	t := middleware.GetResolution(c).Tenant

	items, err := h.repo.ListItems(c.Request.Context(), t.ID, true)
	if err != nil {
		h.logger.Error("failed to list menu", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load menu"})
		return
	}
	categories, err := h.repo.ListCategories(c.Request.Context(), t.ID)
	if err != nil {
		h.logger.Error("failed to list categories", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load menu"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"restaurant": gin.H{
			"name":  t.Name,
			"theme": t.Theme,
		},
		"categories": categories,
		"items":      items,
	})
}

// Featured handles GET /menu/featured.
func (h *MenuHandler) Featured(c *gin.Context) {
	t := middleware.GetResolution(c).Tenant

	items, err := h.repo.ListFeatured(c.Request.Context(), t.ID)
	if err != nil {
		h.logger.Error("failed to list featured items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load menu"})
		return
	}

	c.JSON(http.StatusOK, items)
}

type menuItemRequest struct {
	CategoryID  *uuid.UUID `json:"category_id"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	// Price arrives as a string ("9.50") and is parsed as a decimal.
	// Accepting a JSON number would route it through float64.
	Price     string `json:"price" binding:"required"`
	Available *bool  `json:"available"`
	Featured  bool   `json:"featured"`
	ImageURL  string `json:"image_url"`
}

func (r *menuItemRequest) toModel(tenantID uuid.UUID) (*models.MenuItem, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, err
	}
	if price.IsNegative() {
		return nil, errNegativePrice
	}
	available := true
	if r.Available != nil {
		available = *r.Available
	}
	return &models.MenuItem{
		TenantID:    tenantID,
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		Price:       price,
		Available:   available,
		Featured:    r.Featured,
		ImageURL:    r.ImageURL,
	}, nil
}

// CreateItem handles POST /admin/menu.
func (h *MenuHandler) CreateItem(c *gin.Context) {
	var req menuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := req.toModel(middleware.GetResolution(c).Tenant.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	created, err := h.repo.CreateItem(c.Request.Context(), item)
	if err != nil {
		h.logger.Error("failed to create menu item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create menu item"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateItem handles PUT /admin/menu/:id.
func (h *MenuHandler) UpdateItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var req menuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := req.toModel(middleware.GetResolution(c).Tenant.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	item.ID = itemID

	updated, err := h.repo.UpdateItem(c.Request.Context(), item)
	if err != nil {
		h.logger.Error("failed to update menu item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update menu item"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteItem handles DELETE /admin/menu/:id.
func (h *MenuHandler) DeleteItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if err := h.repo.DeleteItem(c.Request.Context(), middleware.GetResolution(c).Tenant.ID, itemID); err != nil {
		h.logger.Error("failed to delete menu item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete menu item"})
		return
	}

	c.Status(http.StatusNoContent)
}

type categoryRequest struct {
	Name     string `json:"name" binding:"required"`
	Position int    `json:"position"`
}

// CreateCategory handles POST /admin/categories.
func (h *MenuHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.repo.CreateCategory(c.Request.Context(), &models.Category{
		TenantID: middleware.GetResolution(c).Tenant.ID,
		Name:     req.Name,
		Position: req.Position,
	})
	if err != nil {
		h.logger.Error("failed to create category", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create category"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// DeleteCategory handles DELETE /admin/categories/:id.
func (h *MenuHandler) DeleteCategory(c *gin.Context) {
	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	if err := h.repo.DeleteCategory(c.Request.Context(), middleware.GetResolution(c).Tenant.ID, categoryID); err != nil {
		h.logger.Error("failed to delete category", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete category"})
		return
	}

	c.Status(http.StatusNoContent)
}
