package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koombo/koombo/internal/models"
)

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// Add inserts a membership with the kitchen single-tenant guard enforced
// inside one transaction. The principal row is locked first (FOR UPDATE);
// SetRole takes the same lock, so two concurrent Adds for different tenants,
// or an Add racing a demotion to kitchen, serialize instead of each reading
// a snapshot that can't see the other's uncommitted write.
//
// Returns false when no row was inserted. That covers two cases the caller
// must tell apart: the guard fired, or the membership already existed
// (ON CONFLICT DO NOTHING keeps re-assign idempotent). The membership
// service disambiguates by re-checking IsMember.
func (s *MembershipStore) Add(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("add membership: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var role string
	err = tx.QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("add membership: lock user: %w", err)
	}

	if role == string(models.RoleKitchen) {
		var elsewhere bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM memberships
				WHERE user_id = $1 AND tenant_id <> $2
			)`, userID, tenantID,
		).Scan(&elsewhere)
		if err != nil {
			return false, fmt.Errorf("add membership: check existing: %w", err)
		}
		if elsewhere {
			return false, nil
		}
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO memberships (user_id, tenant_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, tenant_id) DO NOTHING`,
		userID, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("add membership: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("add membership: commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *MembershipStore) Remove(ctx context.Context, userID, tenantID uuid.UUID) error {
	// DELETE is naturally idempotent: zero rows deleted is not an error.
	query := `
		DELETE FROM memberships
		WHERE user_id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, userID, tenantID)
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	return nil
}

func (s *MembershipStore) RemoveAll(ctx context.Context, userID uuid.UUID) error {
	query := `
		DELETE FROM memberships
		WHERE user_id = $1`

	_, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("remove all memberships: %w", err)
	}
	return nil
}

func (s *MembershipStore) CountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT count(*) FROM memberships
		WHERE user_id = $1`

	var n int
	err := s.pool.QueryRow(ctx, query, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}

func (s *MembershipStore) IsMember(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	// EXISTS stops at the first match — this runs on every guarded request.
	query := `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE user_id = $1 AND tenant_id = $2
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, userID, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// TenantsForUser returns the tenants a principal operates, oldest grant
// first. The first entry doubles as the redirect target when the guard
// denies access on a mismatched subdomain.
func (s *MembershipStore) TenantsForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	query := `
		SELECT t.id, t.name, t.subdomain, t.active, t.primary_color, t.secondary_color,
			t.hero_image_url, t.whatsapp_template, t.whatsapp_prefix, t.created_at, t.updated_at
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND t.active
		ORDER BY m.created_at ASC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants for user: %w", err)
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}

	return tenants, nil
}
