package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
	"github.com/koombo/koombo/internal/tenant"
)

// DeniedError is an access rejection with an optional escape hatch: when the
// principal holds memberships elsewhere, RedirectTenant names the subdomain
// the caller should send them to instead of a dead-end error page.
type DeniedError struct {
	Reason         string
	RedirectTenant string
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Reason
}

// Decision is the guard's verdict on one (principal, tenant context) pair.
type Decision struct {
	Admitted       bool
	Reason         string
	RedirectTenant string
}

// Guard admits or denies an authenticated principal to a tenant-scoped
// surface. Rules, in order:
//
//  1. super_admin is admitted everywhere, unconditionally.
//  2. On the main domain, any authenticated principal is admitted. This is
//     a deliberate preview/compatibility relaxation, not a bug — there is
//     no tenant data to protect on the main domain, and staff use it to
//     reach their own restaurant.
//  3. On a tenant domain, admission requires a membership linking the
//     principal to the resolved tenant. On mismatch, the first tenant the
//     principal does operate becomes the redirect hint.
//
// Public read-only surfaces (menu browsing, checkout) never call the guard;
// that exemption lives at the routing layer.
type Guard struct {
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

func NewGuard(memberships repository.MembershipRepository, logger *zap.Logger) *Guard {
	return &Guard{memberships: memberships, logger: logger}
}

func (g *Guard) Authorize(ctx context.Context, principal *models.User, res *tenant.Resolution) (Decision, error) {
	if principal == nil {
		return Decision{Reason: "authentication required"}, nil
	}

	if principal.Role == models.RoleSuperAdmin {
		return Decision{Admitted: true}, nil
	}

	if res.IsMainDomain {
		return Decision{Admitted: true}, nil
	}

	if res.Tenant == nil {
		// A tenant-scoped decision without a resolved tenant means the
		// resolver failed upstream; nothing sane to admit against.
		return Decision{Reason: "no tenant context"}, nil
	}

	ok, err := g.memberships.IsMember(ctx, principal.ID, res.Tenant.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("membership check: %w", err)
	}
	if ok {
		return Decision{Admitted: true}, nil
	}

	// Mismatch. If the principal operates some other tenant, hand back its
	// subdomain so the frontend can offer (or auto-perform) the hop.
	redirect := ""
	tenants, err := g.memberships.TenantsForUser(ctx, principal.ID)
	if err != nil {
		// The redirect hint is best-effort; the denial stands either way.
		g.logger.Warn("redirect hint lookup failed",
			zap.String("user_id", principal.ID.String()),
			zap.Error(err),
		)
	} else if len(tenants) > 0 {
		redirect = tenants[0].Subdomain
	}

	return Decision{
		Reason:         "no membership for tenant " + res.Tenant.Subdomain,
		RedirectTenant: redirect,
	}, nil
}

// CanOperateOrder decides whether a principal may transition a given order.
//
// Tenant-scoped orders follow the membership rule (super_admin excepted).
// Legacy unscoped orders are the documented compatibility widening: any
// staff principal operating at least one tenant may act on them.
func (g *Guard) CanOperateOrder(ctx context.Context, principal *models.User, o *models.Order) (bool, error) {
	if principal == nil || !principal.Role.Staff() {
		return false, nil
	}
	if principal.Role == models.RoleSuperAdmin {
		return true, nil
	}

	if o.IsLegacy() {
		n, err := g.memberships.CountForUser(ctx, principal.ID)
		if err != nil {
			return false, fmt.Errorf("membership count: %w", err)
		}
		return n > 0, nil
	}

	ok, err := g.memberships.IsMember(ctx, principal.ID, *o.TenantID)
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return ok, nil
}
