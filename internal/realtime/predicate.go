package realtime

import (
	"github.com/google/uuid"

	"github.com/koombo/koombo/internal/models"
)

// Predicate scopes a subscription: which orders a viewer cares about.
// A kitchen board wants "open orders for my tenant, plus legacy"; a
// customer tracking page wants "this one order id".
type Predicate struct {
	// TenantID narrows to one tenant's orders. Nil means no tenant filter
	// (super-admin dashboards).
	TenantID *uuid.UUID

	// OrderID narrows to a single order (customer tracking). Nil = any.
	OrderID *uuid.UUID

	// Statuses narrows to a status set. Empty = any status.
	Statuses []models.OrderStatus

	// IncludeLegacy widens a tenant-scoped predicate to unscoped
	// pre-multi-tenant orders, the kitchen compatibility rule.
	IncludeLegacy bool
}

// Matches reports whether an order falls inside the predicate.
func (p Predicate) Matches(o *models.Order) bool {
	if p.OrderID != nil && *p.OrderID != o.ID {
		return false
	}
	if p.TenantID != nil {
		switch {
		case o.IsLegacy():
			if !p.IncludeLegacy {
				return false
			}
		case *o.TenantID != *p.TenantID:
			return false
		}
	}
	if len(p.Statuses) > 0 {
		ok := false
		for _, st := range p.Statuses {
			if st == o.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
