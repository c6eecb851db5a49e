package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/membership"
	"github.com/koombo/koombo/internal/middleware"
	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/notify"
	"github.com/koombo/koombo/internal/order"
	"github.com/koombo/koombo/internal/repository"
)

// AdminHandler is the restaurant back office: order history, purge, the
// outbound WhatsApp message, staff membership, and role changes. Behind
// RequireRole(admin, super_admin) plus the guard.
type AdminHandler struct {
	orders         *order.Service
	orderRepo      repository.OrderRepository
	memberships    *membership.Service
	whatsappPrefix string
	logger         *zap.Logger
}

func NewAdminHandler(
	orders *order.Service,
	orderRepo repository.OrderRepository,
	memberships *membership.Service,
	whatsappPrefix string,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		orders:         orders,
		orderRepo:      orderRepo,
		memberships:    memberships,
		whatsappPrefix: whatsappPrefix,
		logger:         logger,
	}
}

// ListOrders handles GET /admin/orders?limit=50&offset=0.
func (h *AdminHandler) ListOrders(c *gin.Context) {
	t := middleware.GetResolution(c).Tenant

	limit := 50
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		limit = min(n, 200)
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'offset' parameter"})
			return
		}
		offset = n
	}

	orders, err := h.orderRepo.ListByTenant(c.Request.Context(), t.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// orderForTenant loads the order named in the path and hides it when it
// belongs to another tenant: a cross-tenant probe by UUID must look
// identical to absence. Legacy unscoped orders stay reachable — the same
// compatibility widening the kitchen board applies. On false the response
// has already been written.
func (h *AdminHandler) orderForTenant(c *gin.Context) (*models.Order, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return nil, false
	}

	o, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return nil, false
		}
		h.logger.Error("failed to load order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return nil, false
	}

	t := middleware.GetResolution(c).Tenant
	if !o.IsLegacy() && *o.TenantID != t.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return nil, false
	}
	return o, true
}

// GetOrder handles GET /admin/orders/:id.
func (h *AdminHandler) GetOrder(c *gin.Context) {
	o, ok := h.orderForTenant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, o)
}

// PurgeOrder handles DELETE /admin/orders/:id — the explicit
// administrative purge, the only hard delete in the order's life.
func (h *AdminHandler) PurgeOrder(c *gin.Context) {
	o, ok := h.orderForTenant(c)
	if !ok {
		return
	}

	if err := h.orders.Purge(c.Request.Context(), o.ID); err != nil {
		h.logger.Error("failed to purge order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge order"})
		return
	}

	c.Status(http.StatusNoContent)
}

// WhatsApp handles POST /admin/orders/:id/whatsapp. The message renders on
// explicit staff action only — nothing sends automatically, and nothing is
// tracked: the response carries the text and the deep link, the messaging
// app does the rest.
func (h *AdminHandler) WhatsApp(c *gin.Context) {
	o, ok := h.orderForTenant(c)
	if !ok {
		return
	}

	t := middleware.GetResolution(c).Tenant
	c.JSON(http.StatusOK, notify.RenderOutbound(t, o, h.whatsappPrefix))
}

type assignMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// AssignMember handles POST /admin/members: grant a principal operating
// rights on the current tenant.
func (h *AdminHandler) AssignMember(c *gin.Context) {
	var req assignMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := middleware.GetResolution(c).Tenant
	err := h.memberships.Assign(c.Request.Context(), req.UserID, t.ID)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrKitchenSingleTenant):
			// Surfaced verbatim: a two-restaurant kitchen account is an
			// operator mistake that must be seen, not smoothed over.
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, membership.ErrPrincipalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("failed to assign membership", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign membership"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /admin/members/:user_id.
func (h *AdminHandler) RemoveMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	t := middleware.GetResolution(c).Tenant
	if err := h.memberships.Unassign(c.Request.Context(), userID, t.ID); err != nil {
		h.logger.Error("failed to remove membership", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove membership"})
		return
	}

	c.Status(http.StatusNoContent)
}

type changeRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// ChangeRole handles POST /admin/users/:id/role. Admins may set any role
// except super_admin; only a super_admin mints super_admins.
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.GetPrincipal(c)
	err = h.memberships.ChangeRole(c.Request.Context(), actor, userID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrKitchenSingleTenant):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, membership.ErrRoleNotPermitted):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, membership.ErrPrincipalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("failed to change role", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change role"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
