package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/access"
	"github.com/koombo/koombo/internal/models"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type memOrders struct {
	byID map[uuid.UUID]*models.Order
}

func newMemOrders() *memOrders {
	return &memOrders{byID: make(map[uuid.UUID]*models.Order)}
}

func (m *memOrders) Create(_ context.Context, o *models.Order) (*models.Order, error) {
	cp := *o
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memOrders) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return nil, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOpen(_ context.Context, tenantID uuid.UUID, includeLegacy bool) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.byID {
		open := false
		for _, st := range models.OpenStatuses {
			if o.Status == st {
				open = true
				break
			}
		}
		if !open {
			continue
		}
		if o.IsLegacy() {
			if includeLegacy {
				out = append(out, *o)
			}
			continue
		}
		if *o.TenantID == tenantID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) ListByTenant(_ context.Context, tenantID uuid.UUID, _, _ int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range m.byID {
		if o.TenantID != nil && *o.TenantID == tenantID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) Delete(_ context.Context, orderID uuid.UUID) error {
	delete(m.byID, orderID)
	return nil
}

type memMenu struct {
	items map[uuid.UUID]*models.MenuItem
}

func newMemMenu() *memMenu {
	return &memMenu{items: make(map[uuid.UUID]*models.MenuItem)}
}

func (m *memMenu) add(tenantID uuid.UUID, name, price string, available bool) uuid.UUID {
	id := uuid.New()
	m.items[id] = &models.MenuItem{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Available: available,
	}
	return id
}

func (m *memMenu) CreateItem(_ context.Context, item *models.MenuItem) (*models.MenuItem, error) {
	return item, nil
}

func (m *memMenu) UpdateItem(_ context.Context, item *models.MenuItem) (*models.MenuItem, error) {
	return item, nil
}

func (m *memMenu) DeleteItem(_ context.Context, _, itemID uuid.UUID) error {
	delete(m.items, itemID)
	return nil
}

func (m *memMenu) GetItem(_ context.Context, tenantID, itemID uuid.UUID) (*models.MenuItem, error) {
	it, ok := m.items[itemID]
	if !ok || it.TenantID != tenantID {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memMenu) ListItems(_ context.Context, _ uuid.UUID, _ bool) ([]models.MenuItem, error) {
	return nil, nil
}

func (m *memMenu) ListFeatured(_ context.Context, _ uuid.UUID) ([]models.MenuItem, error) {
	return nil, nil
}

func (m *memMenu) CreateCategory(_ context.Context, c *models.Category) (*models.Category, error) {
	return c, nil
}

func (m *memMenu) ListCategories(_ context.Context, _ uuid.UUID) ([]models.Category, error) {
	return nil, nil
}

func (m *memMenu) DeleteCategory(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

type memMemberships struct {
	pairs map[[2]uuid.UUID]bool
}

func newMemMemberships() *memMemberships {
	return &memMemberships{pairs: make(map[[2]uuid.UUID]bool)}
}

func (m *memMemberships) grant(userID, tenantID uuid.UUID) {
	m.pairs[[2]uuid.UUID{userID, tenantID}] = true
}

func (m *memMemberships) Add(_ context.Context, userID, tenantID uuid.UUID) (bool, error) {
	key := [2]uuid.UUID{userID, tenantID}
	if m.pairs[key] {
		return false, nil
	}
	m.pairs[key] = true
	return true, nil
}

func (m *memMemberships) Remove(_ context.Context, userID, tenantID uuid.UUID) error {
	delete(m.pairs, [2]uuid.UUID{userID, tenantID})
	return nil
}

func (m *memMemberships) RemoveAll(_ context.Context, userID uuid.UUID) error {
	for key := range m.pairs {
		if key[0] == userID {
			delete(m.pairs, key)
		}
	}
	return nil
}

func (m *memMemberships) CountForUser(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for key := range m.pairs {
		if key[0] == userID {
			n++
		}
	}
	return n, nil
}

func (m *memMemberships) IsMember(_ context.Context, userID, tenantID uuid.UUID) (bool, error) {
	return m.pairs[[2]uuid.UUID{userID, tenantID}], nil
}

func (m *memMemberships) TenantsForUser(_ context.Context, _ uuid.UUID) ([]models.Tenant, error) {
	return nil, nil
}

type recordingFeed struct {
	published []*models.Order
}

func (f *recordingFeed) PublishChange(_ context.Context, o *models.Order) error {
	f.published = append(f.published, o)
	return nil
}

type recordingNotifier struct {
	events []models.NotificationEvent
}

func (n *recordingNotifier) Dispatch(ev models.NotificationEvent) {
	n.events = append(n.events, ev)
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc         *Service
	orders      *memOrders
	menu        *memMenu
	memberships *memMemberships
	feed        *recordingFeed
	notifier    *recordingNotifier
	tenant      *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := newMemOrders()
	menu := newMemMenu()
	memberships := newMemMemberships()
	feed := &recordingFeed{}
	notifier := &recordingNotifier{}
	guard := access.NewGuard(memberships, zap.NewNop())

	return &fixture{
		svc:         NewService(orders, menu, guard, feed, notifier, zap.NewNop()),
		orders:      orders,
		menu:        menu,
		memberships: memberships,
		feed:        feed,
		notifier:    notifier,
		tenant: &models.Tenant{
			ID:        uuid.New(),
			Name:      "Pizza Joe",
			Subdomain: "pizza-joe",
			Active:    true,
		},
	}
}

func (f *fixture) staff(role models.Role, memberOf ...uuid.UUID) *models.User {
	u := &models.User{ID: uuid.New(), Role: role}
	for _, tid := range memberOf {
		f.memberships.grant(u.ID, tid)
	}
	return u
}

func validInput(items ...PlaceItem) PlaceInput {
	return PlaceInput{
		CustomerName:    "Ana García",
		CustomerPhone:   "600111222",
		DeliveryAddress: "Calle Mayor 1",
		PaymentMethod:   "cash",
		Items:           items,
	}
}

// ---------------------------------------------------------------------------
// Place
// ---------------------------------------------------------------------------

func TestPlaceFreezesSnapshotAndTotal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	margherita := f.menu.add(f.tenant.ID, "Margherita", "12.90", true)
	tabla := f.menu.add(f.tenant.ID, "Tabla mixta", "20.00", true)

	created, err := f.svc.Place(context.Background(), f.tenant, validInput(
		PlaceItem{MenuItemID: margherita, Quantity: 2},
		PlaceItem{MenuItemID: tabla, Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "45.80", created.Total.StringFixed(2))
	require.Len(t, created.Items, 2)
	assert.Equal(t, "Margherita", created.Items[0].Name)
	assert.Equal(t, "12.90", created.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, created.Items[0].Quantity)
	require.NotNil(t, created.TenantID)
	assert.Equal(t, f.tenant.ID, *created.TenantID)

	// The menu changing afterwards must not move the frozen numbers.
	f.menu.items[margherita].Price = decimal.RequireFromString("99.00")
	stored, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "45.80", stored.Total.StringFixed(2))
	assert.Equal(t, "12.90", stored.Items[0].UnitPrice.StringFixed(2))
}

func TestPlaceAnnouncesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	item := f.menu.add(f.tenant.ID, "Margherita", "12.90", true)
	created, err := f.svc.Place(context.Background(), f.tenant, validInput(
		PlaceItem{MenuItemID: item, Quantity: 1},
	))
	require.NoError(t, err)

	require.Len(t, f.feed.published, 1)
	assert.Equal(t, created.ID, f.feed.published[0].ID)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.NotifyNewOrder, f.notifier.events[0].Type)
	assert.Equal(t, created.ID, f.notifier.events[0].OrderID)
}

func TestPlaceValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	available := f.menu.add(f.tenant.ID, "Margherita", "12.90", true)
	soldOut := f.menu.add(f.tenant.ID, "Calzone", "14.50", false)
	otherTenantItem := f.menu.add(uuid.New(), "Foreign", "9.00", true)

	inactive := *f.tenant
	inactive.Active = false

	tests := []struct {
		name   string
		tenant *models.Tenant
		input  PlaceInput
	}{
		{
			name:   "inactive tenant",
			tenant: &inactive,
			input:  validInput(PlaceItem{MenuItemID: available, Quantity: 1}),
		},
		{
			name:   "empty cart",
			tenant: f.tenant,
			input:  validInput(),
		},
		{
			name:   "missing customer name",
			tenant: f.tenant,
			input: PlaceInput{
				CustomerPhone:   "600111222",
				DeliveryAddress: "Calle Mayor 1",
				Items:           []PlaceItem{{MenuItemID: available, Quantity: 1}},
			},
		},
		{
			name:   "zero quantity",
			tenant: f.tenant,
			input:  validInput(PlaceItem{MenuItemID: available, Quantity: 0}),
		},
		{
			name:   "unknown menu item",
			tenant: f.tenant,
			input:  validInput(PlaceItem{MenuItemID: uuid.New(), Quantity: 1}),
		},
		{
			name:   "unavailable menu item",
			tenant: f.tenant,
			input:  validInput(PlaceItem{MenuItemID: soldOut, Quantity: 1}),
		},
		{
			name:   "item from another tenant",
			tenant: f.tenant,
			input:  validInput(PlaceItem{MenuItemID: otherTenantItem, Quantity: 1}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Place(context.Background(), tt.tenant, tt.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	// None of the rejected placements may have leaked an announcement.
	assert.Empty(t, f.feed.published)
	assert.Empty(t, f.notifier.events)
}

// ---------------------------------------------------------------------------
// Transition
// ---------------------------------------------------------------------------

func (f *fixture) placedOrder(t *testing.T) *models.Order {
	t.Helper()
	item := f.menu.add(f.tenant.ID, "Margherita", "12.90", true)
	o, err := f.svc.Place(context.Background(), f.tenant, validInput(
		PlaceItem{MenuItemID: item, Quantity: 1},
	))
	require.NoError(t, err)
	return o
}

func TestTransitionFullLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	admin := f.staff(models.RoleAdmin, f.tenant.ID)

	path := []models.OrderStatus{
		models.StatusConfirmed,
		models.StatusPreparing,
		models.StatusReady,
		models.StatusDelivered,
	}
	for _, next := range path {
		updated, err := f.svc.Transition(context.Background(), o.ID, next, admin)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	// One announcement per committed mutation: the placement plus four
	// transitions, nothing more.
	assert.Len(t, f.feed.published, 5)
	require.Len(t, f.notifier.events, 5)
	for _, ev := range f.notifier.events[1:] {
		assert.Equal(t, models.NotifyStatusChange, ev.Type)
	}
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	admin := f.staff(models.RoleAdmin, f.tenant.ID)

	before := len(f.notifier.events)
	updated, err := f.svc.Transition(context.Background(), o.ID, models.StatusPending, admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)

	// A retried request must not produce a second event or feed publish.
	assert.Len(t, f.notifier.events, before)
	assert.Len(t, f.feed.published, 1)
}

func TestTransitionRejectsIllegalJump(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	admin := f.staff(models.RoleAdmin, f.tenant.ID)

	_, err := f.svc.Transition(context.Background(), o.ID, models.StatusReady, admin)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusPending, invalid.From)
	assert.Equal(t, models.StatusReady, invalid.To)

	// The failed attempt left the order untouched and silent.
	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Len(t, f.notifier.events, 1)
}

func TestTransitionDeniesCrossTenantKitchen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	// Kitchen principal of a DIFFERENT restaurant.
	intruder := f.staff(models.RoleKitchen, uuid.New())

	_, err := f.svc.Transition(context.Background(), o.ID, models.StatusConfirmed, intruder)
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestTransitionDeniesNonStaff(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	customer := f.staff(models.RoleUser, f.tenant.ID)

	_, err := f.svc.Transition(context.Background(), o.ID, models.StatusConfirmed, customer)
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)
}

func TestTransitionSuperAdminAnywhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	super := f.staff(models.RoleSuperAdmin) // no memberships at all

	updated, err := f.svc.Transition(context.Background(), o.ID, models.StatusConfirmed, super)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
}

func TestTransitionLegacyOrderWidening(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Pre-multi-tenant order: no tenant reference at all.
	legacy, err := f.orders.Create(context.Background(), &models.Order{
		CustomerName:    "Old Customer",
		CustomerPhone:   "600000000",
		DeliveryAddress: "Somewhere 1",
		Status:          models.StatusPending,
		Total:           decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)

	// Any staff principal operating at least one tenant may act on it.
	kitchen := f.staff(models.RoleKitchen, f.tenant.ID)
	updated, err := f.svc.Transition(context.Background(), legacy.ID, models.StatusConfirmed, kitchen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)

	// A staff principal with zero memberships may not.
	drifter := f.staff(models.RoleKitchen)
	_, err = f.svc.Transition(context.Background(), legacy.ID, models.StatusPreparing, drifter)
	var denied *access.DeniedError
	require.ErrorAs(t, err, &denied)
}

func TestTransitionUnknownOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	admin := f.staff(models.RoleAdmin, f.tenant.ID)
	_, err := f.svc.Transition(context.Background(), uuid.New(), models.StatusConfirmed, admin)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPurgeRemovesOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.placedOrder(t)
	require.NoError(t, f.svc.Purge(context.Background(), o.ID))

	_, err := f.svc.Get(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}
