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

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, email, displayName, passwordHash string, role models.Role) (*models.User, error) {
	query := `
		INSERT INTO users (email, display_name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, email, display_name, password_hash, role, created_at`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email, displayName, passwordHash, string(role)).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, role, created_at
		FROM users
		WHERE id = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetByEmail looks up a user by email (globally, not tenant-scoped).
// Used for login — you type your email, we find you.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, role, created_at
		FROM users
		WHERE email = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// SetRole changes the global role, refusing to set 'kitchen' while the
// principal holds more than one membership. The check and the write run in
// one transaction behind a FOR UPDATE lock on the principal row — the same
// lock MembershipStore.Add takes — so a demotion racing a membership grant
// serializes rather than both committing against stale snapshots.
//
// Returns false when the guard (or a missing user) blocked the write.
func (s *UserStore) SetRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("set role: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("set role: lock user: %w", err)
	}

	if role == models.RoleKitchen {
		var n int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM memberships WHERE user_id = $1`, userID,
		).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("set role: count memberships: %w", err)
		}
		if n > 1 {
			return false, nil
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET role = $2 WHERE id = $1`, userID, string(role),
	); err != nil {
		return false, fmt.Errorf("set role: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("set role: commit: %w", err)
	}
	return true, nil
}
