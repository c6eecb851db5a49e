package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
)

// fakeOrders is an in-memory OrderRepository backing the feed tests; the
// feed only reads (GetByID, ListOpen), the rest satisfies the interface.
type fakeOrders struct {
	byID map[uuid.UUID]*models.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrders) put(o *models.Order) *models.Order {
	f.byID[o.ID] = o
	return o
}

func (f *fakeOrders) Create(_ context.Context, o *models.Order) (*models.Order, error) {
	return f.put(o), nil
}

func (f *fakeOrders) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	o := f.byID[orderID]
	o.Status = status
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListOpen(_ context.Context, tenantID uuid.UUID, includeLegacy bool) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.byID {
		switch {
		case o.TenantID == nil:
			if !includeLegacy {
				continue
			}
		case *o.TenantID != tenantID:
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrders) ListByTenant(_ context.Context, tenantID uuid.UUID, _, _ int) ([]models.Order, error) {
	return f.ListOpen(context.Background(), tenantID, false)
}

func (f *fakeOrders) Delete(_ context.Context, orderID uuid.UUID) error {
	delete(f.byID, orderID)
	return nil
}

func newTestFeed() (*Feed, *fakeOrders, *Hub) {
	repo := newFakeOrders()
	hub := NewHub(zap.NewNop())
	return NewFeed(nil, repo, hub, zap.NewNop()), repo, hub
}

// ---------------------------------------------------------------------------

func TestReconcileReplaysTrackedOrder(t *testing.T) {
	t.Parallel()
	feed, repo, hub := newTestFeed()
	ctx := context.Background()

	tenantID := uuid.New()
	tracked := repo.put(&models.Order{
		ID:        uuid.New(),
		TenantID:  &tenantID,
		Status:    models.StatusPreparing,
		UpdatedAt: time.Now(),
	})
	// An unrelated order must not leak into the single-order subscription.
	repo.put(&models.Order{ID: uuid.New(), TenantID: &tenantID, Status: models.StatusPending, UpdatedAt: time.Now()})

	sub := testSubscriber(hub, Predicate{OrderID: &tracked.ID}, 8)
	feed.reconcile(ctx)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, tracked.ID, got[0].Order.ID)
	assert.Equal(t, models.StatusPreparing, got[0].Order.Status)
}

func TestReconcileSkipsPurgedTrackedOrder(t *testing.T) {
	t.Parallel()
	feed, _, hub := newTestFeed()

	gone := uuid.New()
	sub := testSubscriber(hub, Predicate{OrderID: &gone}, 8)
	feed.reconcile(context.Background())

	assert.Empty(t, drain(sub))
}

func TestReconcileReplaysTenantScope(t *testing.T) {
	t.Parallel()
	feed, repo, hub := newTestFeed()

	tenantA := uuid.New()
	tenantB := uuid.New()
	repo.put(&models.Order{ID: uuid.New(), TenantID: &tenantA, Status: models.StatusPending, UpdatedAt: time.Now()})
	repo.put(&models.Order{ID: uuid.New(), TenantID: &tenantA, Status: models.StatusConfirmed, UpdatedAt: time.Now()})
	repo.put(&models.Order{ID: uuid.New(), TenantID: &tenantB, Status: models.StatusPending, UpdatedAt: time.Now()})

	sub := testSubscriber(hub, Predicate{TenantID: &tenantA}, 8)
	feed.reconcile(context.Background())

	assert.Len(t, drain(sub), 2)
}

func TestHandleRefetchesAndFansOut(t *testing.T) {
	t.Parallel()
	feed, repo, hub := newTestFeed()

	tenantID := uuid.New()
	o := repo.put(&models.Order{
		ID:        uuid.New(),
		TenantID:  &tenantID,
		Status:    models.StatusPending,
		UpdatedAt: time.Now(),
	})
	sub := testSubscriber(hub, Predicate{OrderID: &o.ID}, 8)

	// The announcement carries a stale status; the broadcast must carry the
	// repository's current state, not the message's.
	o.Status = models.StatusReady
	payload, err := json.Marshal(ChangeMessage{OrderID: o.ID, TenantID: &tenantID, Status: models.StatusPending, UpdatedAt: o.UpdatedAt})
	require.NoError(t, err)

	feed.handle(context.Background(), string(payload))

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusReady, got[0].Order.Status)
}

func TestHandleIgnoresMalformedAndPurged(t *testing.T) {
	t.Parallel()
	feed, _, hub := newTestFeed()
	sub := testSubscriber(hub, Predicate{}, 8)

	feed.handle(context.Background(), "{not json")

	payload, err := json.Marshal(ChangeMessage{OrderID: uuid.New()})
	require.NoError(t, err)
	feed.handle(context.Background(), string(payload))

	assert.Empty(t, drain(sub))
}
