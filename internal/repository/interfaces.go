package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/koombo/koombo/internal/models"
)

// Every method takes context.Context first: DB calls are I/O, and the HTTP
// request's context must be able to cancel them.
//
// Tenant scoping note: unlike a classic multi-tenant schema, orders may have
// a NULL tenant_id (pre-multi-tenant rows). Methods that list orders say
// explicitly whether they widen to those legacy rows — the widening is a
// documented compatibility rule, never an accident of a nullable column.

// TenantRepository handles restaurant records.
type TenantRepository interface {
	// Create inserts a tenant and returns it with ID and timestamps populated.
	Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error)

	// Update rewrites the mutable fields (name, theme, template, prefix).
	// Subdomain and active flag change through their own methods.
	Update(ctx context.Context, t *models.Tenant) (*models.Tenant, error)

	// SetActive flips the active flag. Deactivation is what revokes a
	// tenant's routable key and stops new order admission.
	SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error

	// GetByID returns a tenant regardless of active flag. nil, nil if absent.
	GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetActiveBySubdomain resolves a routable key to an ACTIVE tenant.
	// Inactive tenants do not resolve — that is the resolver's contract.
	// Lookup is case-insensitive. nil, nil if absent.
	GetActiveBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)

	// List returns all tenants, newest first (super-admin console).
	List(ctx context.Context) ([]models.Tenant, error)
}

// UserRepository handles principals.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string, role models.Role) (*models.User, error)

	// GetByID returns nil, nil when not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail is the login lookup (global, not tenant-scoped).
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// SetRole changes the global role. The statement itself refuses to set
	// 'kitchen' on a principal holding more than one membership, so the
	// check and the write are a single atomic step. Returns false when the
	// guard (or a missing user) blocked the write.
	SetRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

// MembershipRepository handles (principal, tenant) operating grants.
type MembershipRepository interface {
	// Add inserts a membership. The statement refuses to give a
	// kitchen-role principal a second tenant — check and insert are one
	// atomic step. Returns false when nothing was inserted; the caller
	// distinguishes "already a member" (fine) from the kitchen guard.
	Add(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)

	// Remove deletes one membership. No-op if absent.
	Remove(ctx context.Context, userID, tenantID uuid.UUID) error

	// RemoveAll deletes every membership of a principal. This is how a
	// kitchen principal moves restaurants: RemoveAll, then Add.
	RemoveAll(ctx context.Context, userID uuid.UUID) error

	// CountForUser returns how many memberships a principal holds.
	CountForUser(ctx context.Context, userID uuid.UUID) (int, error)

	// IsMember is the hot-path access check.
	IsMember(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)

	// TenantsForUser returns the tenants a principal may operate, oldest
	// grant first — the first entry is the redirect target on mismatch.
	TenantsForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error)
}

// MenuRepository handles menu items and their categories.
type MenuRepository interface {
	CreateItem(ctx context.Context, item *models.MenuItem) (*models.MenuItem, error)
	UpdateItem(ctx context.Context, item *models.MenuItem) (*models.MenuItem, error)
	DeleteItem(ctx context.Context, tenantID, itemID uuid.UUID) error

	// GetItem returns nil, nil when not found (or when the tenant doesn't
	// own it — cross-tenant probes look identical to absence).
	GetItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.MenuItem, error)

	// ListItems returns a tenant's menu. availableOnly narrows to what a
	// customer may order right now.
	ListItems(ctx context.Context, tenantID uuid.UUID, availableOnly bool) ([]models.MenuItem, error)

	ListFeatured(ctx context.Context, tenantID uuid.UUID) ([]models.MenuItem, error)

	CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error)
	ListCategories(ctx context.Context, tenantID uuid.UUID) ([]models.Category, error)
	DeleteCategory(ctx context.Context, tenantID, categoryID uuid.UUID) error
}

// OrderRepository handles order persistence.
type OrderRepository interface {
	// Create persists a placed order (status pending, total frozen).
	Create(ctx context.Context, o *models.Order) (*models.Order, error)

	// GetByID returns nil, nil when not found. Not tenant-scoped: callers
	// decide visibility (legacy orders belong to no tenant).
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	// UpdateStatus writes status and updated_at, nothing else, and returns
	// the row as committed. Full-state write: last commit wins, losers
	// reconcile from the next realtime push.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error)

	// ListOpen returns non-terminal orders for a tenant's kitchen board.
	// includeLegacy widens to unscoped pre-multi-tenant orders.
	ListOpen(ctx context.Context, tenantID uuid.UUID, includeLegacy bool) ([]models.Order, error)

	// ListByTenant returns a tenant's orders newest first, paginated.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Order, error)

	// Delete is the administrative purge — the only hard delete of orders.
	Delete(ctx context.Context, orderID uuid.UUID) error
}
