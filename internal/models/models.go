package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is a principal's single global role. Roles are mutually exclusive —
// a user is exactly one of these at a time, never a combination.
type Role string

const (
	RoleUser       Role = "user"
	RoleKitchen    Role = "kitchen"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleKitchen, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Staff reports whether the role may operate a kitchen board or admin console.
func (r Role) Staff() bool {
	return r == RoleKitchen || r == RoleAdmin || r == RoleSuperAdmin
}

// OrderStatus is the order lifecycle state.
//
// The transition graph lives in internal/order — the model only names states.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// OpenStatuses are the states a kitchen board cares about. Delivered and
// cancelled orders drop off the live views.
var OpenStatuses = []OrderStatus{StatusPending, StatusConfirmed, StatusPreparing, StatusReady}

// Theme is the per-restaurant branding block served alongside the menu.
// Presentation is the frontend's problem; we just store and hand it back.
type Theme struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	HeroImageURL   string `json:"hero_image_url"`
}

// Tenant is one restaurant's isolated operating context.
//
// Subdomain is the routable key: "pizza-joe" serves pizza-joe.koombo.online.
// It must be unique among ACTIVE tenants — a deactivated tenant's subdomain
// may be reused, which is why uniqueness is a partial index, not a plain one.
type Tenant struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Subdomain        string    `json:"subdomain"`
	Active           bool      `json:"active"`
	Theme            Theme     `json:"theme"`
	WhatsAppTemplate string    `json:"whatsapp_template,omitempty"`
	WhatsAppPrefix   string    `json:"whatsapp_prefix,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// User is an authenticated principal. Note there is no TenantID here:
// tenant access is granted through Membership rows, not a column on the
// user. A user with zero memberships is a plain customer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Membership links a principal to a tenant it may operate on.
//
// Invariant (enforced in internal/membership): a kitchen-role principal
// holds at most one membership. Admins and super admins may hold many.
type Membership struct {
	UserID    uuid.UUID `json:"user_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Category groups menu items for display ordering.
type Category struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

// MenuItem belongs to exactly one tenant.
//
// Price is a decimal, never a float. Financial totals must round the way
// humans expect, and binary floats don't — 0.1+0.2 is not 0.3 in float64.
type MenuItem struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	CategoryID  *uuid.UUID      `json:"category_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	Featured    bool            `json:"featured"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderItem is a line-item snapshot frozen at checkout. It deliberately
// carries the name and unit price as values, not a MenuItem reference:
// editing or deleting the menu item later must not alter historical orders.
type OrderItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Order is the one shared mutable resource in the system. Multiple kitchen
// and admin sessions plus the originating customer can all observe it at
// once; only Status and UpdatedAt ever change after creation.
//
// TenantID is nullable on purpose. Orders placed before the platform went
// multi-tenant have no tenant reference and are visible to every kitchen —
// a compatibility shim, not a security boundary. IsLegacy names that rule.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        *uuid.UUID      `json:"tenant_id,omitempty"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	DeliveryAddress string          `json:"delivery_address"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsLegacy reports whether the order predates tenant scoping.
func (o *Order) IsLegacy() bool {
	return o.TenantID == nil
}

// NotificationType tags what a NotificationEvent announces.
type NotificationType string

const (
	NotifyNewOrder     NotificationType = "new_order"
	NotifyStatusChange NotificationType = "status_change"
)

// NotificationEvent is an ephemeral, in-process signal produced by order
// lifecycle transitions. It is not persisted — the order row itself is the
// durable record; losing popups across a restart is acceptable.
type NotificationEvent struct {
	ID        uuid.UUID        `json:"id"`
	Type      NotificationType `json:"type"`
	OrderID   uuid.UUID        `json:"order_id"`
	TenantID  *uuid.UUID       `json:"tenant_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}
