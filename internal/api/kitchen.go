package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/access"
	"github.com/koombo/koombo/internal/middleware"
	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/notify"
	"github.com/koombo/koombo/internal/order"
	"github.com/koombo/koombo/internal/realtime"
	"github.com/koombo/koombo/internal/repository"
)

// KitchenHandler is the live order board: the open-order list, the status
// transitions, the websocket stream, and the popup feed. Everything here
// sits behind RequireRole(kitchen, admin, super_admin) plus the guard.
type KitchenHandler struct {
	orders     *order.Service
	orderRepo  repository.OrderRepository
	hub        *realtime.Hub
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

func NewKitchenHandler(
	orders *order.Service,
	orderRepo repository.OrderRepository,
	hub *realtime.Hub,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
) *KitchenHandler {
	return &KitchenHandler{
		orders:     orders,
		orderRepo:  orderRepo,
		hub:        hub,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ListOpen handles GET /kitchen/orders: the tenant's open orders, widened
// to legacy unscoped orders per the compatibility rule.
func (h *KitchenHandler) ListOpen(c *gin.Context) {
	t := middleware.GetResolution(c).Tenant

	orders, err := h.orderRepo.ListOpen(c.Request.Context(), t.ID, true)
	if err != nil {
		h.logger.Error("failed to list open orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

type transitionRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// Transition handles PATCH /kitchen/orders/:id/status.
//
// Error mapping follows the lifecycle contract: an illegal jump is a 422
// naming the rejected pair, an unauthorized principal is a 403, and
// re-submitting the current status is a plain 200 — retries from flaky
// realtime delivery must not surface as failures.
func (h *KitchenHandler) Transition(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal := middleware.GetPrincipal(c)
	updated, err := h.orders.Transition(c.Request.Context(), orderID, req.Status, principal)
	if err != nil {
		var (
			invalid *order.InvalidTransitionError
			denied  *access.DeniedError
		)
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.As(err, &invalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalid.Error()})
		case errors.As(err, &denied):
			c.JSON(http.StatusForbidden, gin.H{"error": denied.Reason})
		default:
			h.logger.Error("failed to transition order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Stream handles GET /kitchen/ws: the websocket subscription backing the
// live board. The predicate is fixed server-side — a client cannot widen
// its own scope past the resolved tenant.
func (h *KitchenHandler) Stream(c *gin.Context) {
	t := middleware.GetResolution(c).Tenant
	tenantID := t.ID

	pred := realtime.Predicate{
		TenantID:      &tenantID,
		Statuses:      models.OpenStatuses,
		IncludeLegacy: true,
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, pred); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		// Upgrade failures already wrote the HTTP response.
	}
}

// Notifications handles GET /kitchen/notifications: active popups with
// their expiry timestamps, so a freshly loaded board can show what just
// happened and draw the countdowns.
func (h *KitchenHandler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Active(time.Now()))
}

// DismissNotification handles POST /kitchen/notifications/:id/read.
func (h *KitchenHandler) DismissNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if !h.dispatcher.MarkRead(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
