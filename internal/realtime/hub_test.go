package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
)

// testSubscriber wires a subscriber into the hub without a websocket
// connection; the queueing logic never touches the conn.
func testSubscriber(h *Hub, pred Predicate, buffer int) *subscriber {
	s := &subscriber{
		hub:      h,
		send:     make(chan push, buffer),
		pred:     pred,
		lastSeen: make(map[uuid.UUID]time.Time),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func drain(s *subscriber) []push {
	var out []push
	for {
		select {
		case p := <-s.send:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestBroadcastOrderRespectsPredicate(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	tenantA := uuid.New()
	tenantB := uuid.New()

	subA := testSubscriber(h, Predicate{TenantID: &tenantA}, 8)
	subB := testSubscriber(h, Predicate{TenantID: &tenantB}, 8)

	h.BroadcastOrder(&models.Order{ID: uuid.New(), TenantID: &tenantA, Status: models.StatusPending})

	assert.Len(t, drain(subA), 1)
	assert.Empty(t, drain(subB))
}

func TestStaleOrderPushDropped(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	sub := testSubscriber(h, Predicate{}, 8)

	orderID := uuid.New()
	newer := &models.Order{ID: orderID, Status: models.StatusConfirmed, UpdatedAt: time.Now()}
	older := &models.Order{ID: orderID, Status: models.StatusPending, UpdatedAt: newer.UpdatedAt.Add(-time.Minute)}

	// Out-of-order arrival across a reconnect: newer state first, then the
	// late frame for the same order. The late one must not regress the view.
	h.BroadcastOrder(newer)
	h.BroadcastOrder(older)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusConfirmed, got[0].Order.Status)

	// A different order is untouched by the first one's watermark.
	h.BroadcastOrder(&models.Order{ID: uuid.New(), Status: models.StatusPending, UpdatedAt: time.Now().Add(-time.Hour)})
	assert.Len(t, drain(sub), 1)
}

func TestEqualTimestampRedeliveryPasses(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	sub := testSubscriber(h, Predicate{}, 8)

	o := &models.Order{ID: uuid.New(), Status: models.StatusPending, UpdatedAt: time.Now()}
	// At-least-once redelivery of the very same state is allowed through;
	// only strictly older state is dropped.
	h.BroadcastOrder(o)
	h.BroadcastOrder(o)
	assert.Len(t, drain(sub), 2)
}

func TestSlowSubscriberDetached(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	sub := testSubscriber(h, Predicate{}, 1)

	fill := &models.Order{ID: uuid.New(), Status: models.StatusPending, UpdatedAt: time.Now()}
	h.BroadcastOrder(fill)

	// Second push finds the buffer full: the subscriber gets sealed and
	// detached rather than blocking the broadcast.
	h.BroadcastOrder(&models.Order{ID: uuid.New(), Status: models.StatusPending, UpdatedAt: time.Now()})

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, still := h.subs[sub]
		return !still
	}, time.Second, 10*time.Millisecond)

	// Further broadcasts must not panic on the sealed channel.
	h.BroadcastOrder(&models.Order{ID: uuid.New(), Status: models.StatusPending, UpdatedAt: time.Now()})
}

func TestBroadcastEventScoping(t *testing.T) {
	t.Parallel()

	h := NewHub(zap.NewNop())
	tenantA := uuid.New()
	tenantB := uuid.New()

	subA := testSubscriber(h, Predicate{TenantID: &tenantA}, 8)
	subB := testSubscriber(h, Predicate{TenantID: &tenantB}, 8)

	h.BroadcastEvent(models.NotificationEvent{
		ID:       uuid.New(),
		Type:     models.NotifyNewOrder,
		OrderID:  uuid.New(),
		TenantID: &tenantA,
	})

	got := drain(subA)
	require.Len(t, got, 1)
	assert.Equal(t, "event", got[0].Type)
	assert.Equal(t, models.NotifyNewOrder, got[0].Event.Type)
	assert.Empty(t, drain(subB))
}
