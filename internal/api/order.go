package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/middleware"
	"github.com/koombo/koombo/internal/order"
	"github.com/koombo/koombo/internal/realtime"
)

// OrderHandler serves the public side of ordering: checkout and tracking.
// All of it is unauthenticated by design — a customer ordering a pizza has
// no account, and the order id in their hands is the tracking credential.
type OrderHandler struct {
	orders *order.Service
	hub    *realtime.Hub
	logger *zap.Logger
}

func NewOrderHandler(orders *order.Service, hub *realtime.Hub, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, hub: hub, logger: logger}
}

// Place handles POST /orders — checkout on a tenant domain.
func (h *OrderHandler) Place(c *gin.Context) {
	var req order.PlaceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := middleware.GetResolution(c).Tenant
	created, err := h.orders.Place(c.Request.Context(), t, req)
	if err != nil {
		var verr *order.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Msg})
			return
		}
		h.logger.Error("failed to place order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to place order"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Track handles GET /orders/:id/track — the customer's live order view.
// The response is trimmed: a tracking link holder gets the status and the
// order contents, not operational fields.
func (h *OrderHandler) Track(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	o, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error("failed to load order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         o.ID,
		"status":     o.Status,
		"items":      o.Items,
		"total":      o.Total,
		"created_at": o.CreatedAt,
		"updated_at": o.UpdatedAt,
	})
}

// Stream handles GET /orders/:id/ws — the live counterpart of Track. The
// subscription is pinned to the single order id; status pushes arrive as
// the kitchen works, and a reconnect replays the current state through the
// feed's reconciliation pass.
func (h *OrderHandler) Stream(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	// Reject unknown ids before upgrading: a dangling subscription on a
	// nonexistent order would just hold a socket open forever.
	if _, err := h.orders.Get(c.Request.Context(), orderID); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error("failed to load order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}

	pred := realtime.Predicate{OrderID: &orderID}
	if err := h.hub.ServeWS(c.Writer, c.Request, pred); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		// Upgrade failures already wrote the HTTP response.
	}
}
