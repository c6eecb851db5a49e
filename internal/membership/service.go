package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// ErrKitchenSingleTenant fires when an operation would leave a kitchen-role
// principal operating more than one tenant. Kitchen accounts are physical
// stations in one restaurant; a two-restaurant kitchen login is always a
// configuration mistake an operator must see, never something to swallow.
var ErrKitchenSingleTenant = errors.New("kitchen principals may operate at most one tenant")

// ErrPrincipalNotFound means the target user does not exist.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrRoleNotPermitted means the acting principal may not grant that role
// (admins can change roles, but only a super_admin may mint super_admins).
var ErrRoleNotPermitted = errors.New("acting principal may not grant this role")

// Service is the single enforcement point for the membership invariants.
// The stores make the individual writes atomic; the service owns the rules
// and the error taxonomy.
type Service struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

func NewService(users repository.UserRepository, memberships repository.MembershipRepository, logger *zap.Logger) *Service {
	return &Service{users: users, memberships: memberships, logger: logger}
}

// Assign grants a principal operating rights on a tenant.
//
// Re-assigning an existing membership is a no-op success. For kitchen-role
// principals, a second tenant is refused with ErrKitchenSingleTenant and the
// existing membership is left untouched — the store's guarded insert makes
// the check-and-write a single atomic step.
func (s *Service) Assign(ctx context.Context, userID, tenantID uuid.UUID) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("assign membership: %w", err)
	}
	if u == nil {
		return ErrPrincipalNotFound
	}

	inserted, err := s.memberships.Add(ctx, userID, tenantID)
	if err != nil {
		return fmt.Errorf("assign membership: %w", err)
	}
	if inserted {
		s.logger.Info("membership assigned",
			zap.String("user_id", userID.String()),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil
	}

	// Nothing inserted: either the membership already existed (fine), or
	// the kitchen guard refused a second tenant.
	already, err := s.memberships.IsMember(ctx, userID, tenantID)
	if err != nil {
		return fmt.Errorf("assign membership: %w", err)
	}
	if already {
		return nil
	}
	return ErrKitchenSingleTenant
}

// Unassign revokes one membership. Idempotent.
func (s *Service) Unassign(ctx context.Context, userID, tenantID uuid.UUID) error {
	if err := s.memberships.Remove(ctx, userID, tenantID); err != nil {
		return fmt.Errorf("unassign membership: %w", err)
	}
	return nil
}

// UnassignAll revokes every membership. UnassignAll followed by Assign is
// the prescribed way to move a kitchen principal to another restaurant.
func (s *Service) UnassignAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.memberships.RemoveAll(ctx, userID); err != nil {
		return fmt.Errorf("unassign all memberships: %w", err)
	}
	return nil
}

// TenantsFor lists the tenants a principal operates, oldest grant first.
func (s *Service) TenantsFor(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	tenants, err := s.memberships.TenantsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return tenants, nil
}

// ChangeRole sets a principal's global role on behalf of an acting staff
// principal. The symmetric kitchen check applies: demoting someone TO
// kitchen while they hold several memberships is refused, same invariant,
// same error, enforced in the same guarded statement as the role write.
func (s *Service) ChangeRole(ctx context.Context, actor *models.User, userID uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if actor == nil || (actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin) {
		return ErrRoleNotPermitted
	}
	if role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return ErrRoleNotPermitted
	}

	ok, err := s.users.SetRole(ctx, userID, role)
	if err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	if ok {
		s.logger.Info("role changed",
			zap.String("user_id", userID.String()),
			zap.String("role", string(role)),
		)
		return nil
	}

	// The guarded update wrote nothing: missing user, or the kitchen
	// multi-membership guard.
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	if u == nil {
		return ErrPrincipalNotFound
	}
	return ErrKitchenSingleTenant
}
