package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/access"
	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// ErrOrderNotFound means the order id resolves to nothing.
var ErrOrderNotFound = errors.New("order not found")

// ChangeFeed is where committed order mutations get announced so every
// connected viewer (kitchen board, admin dashboard, customer tracking)
// hears about them. Delivery is at-least-once and best-effort: a publish
// failure is logged, never propagated — the order row is already durable
// and reconnect reconciliation will cover the gap.
type ChangeFeed interface {
	PublishChange(ctx context.Context, o *models.Order) error
}

// Notifier consumes the lifecycle's NotificationEvents (popups, sounds).
type Notifier interface {
	Dispatch(ev models.NotificationEvent)
}

// PlaceItem is one cart line as submitted by the client: a menu item
// reference and a quantity. The client never submits prices — the snapshot
// is built server-side from the live menu.
type PlaceItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
}

// PlaceInput is a checkout request.
type PlaceInput struct {
	CustomerName    string      `json:"customer_name"`
	CustomerPhone   string      `json:"customer_phone"`
	CustomerEmail   string      `json:"customer_email"`
	DeliveryAddress string      `json:"delivery_address"`
	PaymentMethod   string      `json:"payment_method"`
	Notes           string      `json:"notes"`
	Items           []PlaceItem `json:"items"`
}

// Service owns the order lifecycle: creation freezes the financial
// snapshot, transitions walk the state machine, and every committed
// mutation fans out through the feed and the notifier.
type Service struct {
	orders repository.OrderRepository
	menu   repository.MenuRepository
	guard  *access.Guard
	feed   ChangeFeed
	notify Notifier
	logger *zap.Logger
}

func NewService(
	orders repository.OrderRepository,
	menu repository.MenuRepository,
	guard *access.Guard,
	feed ChangeFeed,
	notify Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		orders: orders,
		menu:   menu,
		guard:  guard,
		feed:   feed,
		notify: notify,
		logger: logger,
	}
}

// Place creates a pending order for a tenant.
//
// The line-item snapshot is frozen here: names and unit prices come from
// the tenant's live menu at this instant, and the total is the decimal sum
// of unit price × quantity. Whatever happens to the menu afterwards, this
// order's numbers never move again.
func (s *Service) Place(ctx context.Context, t *models.Tenant, in PlaceInput) (*models.Order, error) {
	if !t.Active {
		return nil, &ValidationError{Msg: "restaurant is not accepting orders"}
	}
	if len(in.Items) == 0 {
		return nil, &ValidationError{Msg: "order must contain at least one item"}
	}
	if in.CustomerName == "" || in.CustomerPhone == "" || in.DeliveryAddress == "" {
		return nil, &ValidationError{Msg: "customer name, phone and delivery address are required"}
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	total := decimal.Zero
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return nil, &ValidationError{Msg: "item quantity must be at least 1"}
		}
		mi, err := s.menu.GetItem(ctx, t.ID, line.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("place order: %w", err)
		}
		if mi == nil {
			return nil, &ValidationError{Msg: "unknown menu item"}
		}
		if !mi.Available {
			return nil, &ValidationError{Msg: mi.Name + " is currently unavailable"}
		}
		items = append(items, models.OrderItem{
			Name:      mi.Name,
			UnitPrice: mi.Price,
			Quantity:  line.Quantity,
		})
		total = total.Add(mi.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tenantID := t.ID
	created, err := s.orders.Create(ctx, &models.Order{
		TenantID:        &tenantID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.CustomerEmail,
		DeliveryAddress: in.DeliveryAddress,
		Items:           items,
		Total:           total,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		Status:          models.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	s.announce(ctx, created, models.NotificationEvent{
		ID:        uuid.New(),
		Type:      models.NotifyNewOrder,
		OrderID:   created.ID,
		TenantID:  created.TenantID,
		Title:     "New order",
		Message:   fmt.Sprintf("%s placed an order for %s", created.CustomerName, created.Total.StringFixed(2)),
		CreatedAt: time.Now(),
	})

	s.logger.Info("order placed",
		zap.String("order_id", created.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("total", created.Total.StringFixed(2)),
	)
	return created, nil
}

// Transition moves an order to targetStatus on behalf of a principal.
//
// Re-issuing the current status is a no-op success: realtime delivery is
// at-least-once, so a retried or duplicated request must not turn into an
// error. A genuine illegal jump fails with InvalidTransitionError naming
// the pair; an unauthorized principal gets access.DeniedError.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus, principal *models.User) (*models.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}

	ok, err := s.guard.CanOperateOrder(ctx, principal, o)
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}
	if !ok {
		return nil, &access.DeniedError{Reason: "principal may not operate on this order"}
	}

	if o.Status == target {
		return o, nil
	}
	if !CanTransition(o.Status, target) {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, target)
	if err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}
	if updated == nil {
		// Purged between read and write. Treat like any other absence.
		return nil, ErrOrderNotFound
	}

	s.announce(ctx, updated, models.NotificationEvent{
		ID:        uuid.New(),
		Type:      models.NotifyStatusChange,
		OrderID:   updated.ID,
		TenantID:  updated.TenantID,
		Title:     "Order " + string(updated.Status),
		Message:   fmt.Sprintf("Order for %s is now %s", updated.CustomerName, updated.Status),
		CreatedAt: time.Now(),
	})

	s.logger.Info("order transitioned",
		zap.String("order_id", updated.ID.String()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(updated.Status)),
	)
	return updated, nil
}

// Get loads an order for viewers (customer tracking, admin detail).
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Purge hard-deletes an order. Administrative action only; nothing in the
// lifecycle itself ever deletes.
func (s *Service) Purge(ctx context.Context, orderID uuid.UUID) error {
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("purge order: %w", err)
	}
	s.logger.Info("order purged", zap.String("order_id", orderID.String()))
	return nil
}

// announce pushes a committed mutation to the feed and the notifier.
// Both are best-effort: the durable write already happened.
func (s *Service) announce(ctx context.Context, o *models.Order, ev models.NotificationEvent) {
	if s.feed != nil {
		if err := s.feed.PublishChange(ctx, o); err != nil {
			s.logger.Warn("change feed publish failed",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
		}
	}
	if s.notify != nil {
		s.notify.Dispatch(ev)
	}
}
