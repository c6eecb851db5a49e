package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// ChannelOrdersChanged is the redis pub/sub channel carrying order
// mutation announcements.
const ChannelOrdersChanged = "orders:changed"

// ChangeMessage is the wire format on the channel. Deliberately thin: just
// enough to know WHICH order moved. The consumer re-fetches the row, so a
// stale or duplicated message can never deliver stale data — only trigger
// a redundant fresh read.
type ChangeMessage struct {
	OrderID   uuid.UUID          `json:"order_id"`
	TenantID  *uuid.UUID         `json:"tenant_id,omitempty"`
	Status    models.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Publisher announces committed order mutations. It implements
// order.ChangeFeed.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) PublishChange(ctx context.Context, o *models.Order) error {
	msg := ChangeMessage{
		OrderID:   o.ID,
		TenantID:  o.TenantID,
		Status:    o.Status,
		UpdatedAt: o.UpdatedAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode change message: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelOrdersChanged, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Feed consumes the change channel and drives the hub.
//
// Pub/sub has no replay: messages published while we were disconnected are
// simply gone. So every (re)subscribe starts with a reconciliation pass —
// one full re-fetch of the open orders behind each live predicate —
// before streaming resumes. Combined with the subscribers' stale-drop,
// that turns "lossy transport" into at-least-once delivery.
type Feed struct {
	rdb    *redis.Client
	orders repository.OrderRepository
	hub    *Hub
	logger *zap.Logger
}

func NewFeed(rdb *redis.Client, orders repository.OrderRepository, hub *Hub, logger *zap.Logger) *Feed {
	return &Feed{rdb: rdb, orders: orders, hub: hub, logger: logger}
}

// Run blocks, consuming the feed until ctx is cancelled. Transport errors
// are retried with backoff and logged; they reach a human only through the
// logs, never through a viewer's screen, unless reconciliation itself
// keeps failing.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		if err := f.consume(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("change feed interrupted, resubscribing",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (f *Feed) consume(ctx context.Context) error {
	pubsub := f.rdb.Subscribe(ctx, ChannelOrdersChanged)
	defer pubsub.Close()

	// Confirm the subscription before reconciling, or changes committed
	// during the reconcile re-fetch could fall into the gap.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.reconcile(ctx)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			f.handle(ctx, msg.Payload)
		}
	}
}

// handle processes one change announcement: decode, re-fetch, fan out.
func (f *Feed) handle(ctx context.Context, payload string) {
	var msg ChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		f.logger.Warn("malformed change message", zap.Error(err))
		return
	}

	o, err := f.orders.GetByID(ctx, msg.OrderID)
	if err != nil {
		f.logger.Warn("change re-fetch failed",
			zap.String("order_id", msg.OrderID.String()),
			zap.Error(err),
		)
		return
	}
	if o == nil {
		// Purged between publish and re-fetch; nothing to show.
		return
	}
	f.hub.BroadcastOrder(o)
}

// reconcile replays the current state behind every live predicate: the open
// orders for each tenant scope, plus a fresh read of every single-order
// subscription (customer tracking). Duplicate pushes are expected and
// absorbed downstream.
func (f *Feed) reconcile(ctx context.Context) {
	type scope struct {
		tenantID uuid.UUID
		legacy   bool
	}
	scopes := make(map[uuid.UUID]scope)
	orderIDs := make(map[uuid.UUID]struct{})
	for _, pred := range f.hub.Predicates() {
		if pred.OrderID != nil {
			orderIDs[*pred.OrderID] = struct{}{}
			continue
		}
		if pred.TenantID == nil {
			continue
		}
		sc := scopes[*pred.TenantID]
		sc.tenantID = *pred.TenantID
		sc.legacy = sc.legacy || pred.IncludeLegacy
		scopes[*pred.TenantID] = sc
	}

	for id := range orderIDs {
		o, err := f.orders.GetByID(ctx, id)
		if err != nil {
			f.logger.Error("reconcile re-fetch failed",
				zap.String("order_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		if o == nil {
			// Purged while the viewer was away.
			continue
		}
		f.hub.BroadcastOrder(o)
	}

	for _, sc := range scopes {
		orders, err := f.orders.ListOpen(ctx, sc.tenantID, sc.legacy)
		if err != nil {
			f.logger.Error("reconcile re-fetch failed",
				zap.String("tenant_id", sc.tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		for i := range orders {
			f.hub.BroadcastOrder(&orders[i])
		}
	}
}
