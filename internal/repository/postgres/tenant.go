package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koombo/koombo/internal/models"
)

const tenantColumns = `id, name, subdomain, active, primary_color, secondary_color,
	hero_image_url, whatsapp_template, whatsapp_prefix, created_at, updated_at`

type TenantStore struct {
	pool *pgxpool.Pool
}

func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Subdomain,
		&t.Active,
		&t.Theme.PrimaryColor,
		&t.Theme.SecondaryColor,
		&t.Theme.HeroImageURL,
		&t.WhatsAppTemplate,
		&t.WhatsAppPrefix,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TenantStore) Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	// Subdomains are stored as given but compared lowercased; normalize on
	// the way in so the partial unique index sees one canonical form.
	query := `
		INSERT INTO tenants (name, subdomain, active, primary_color, secondary_color,
			hero_image_url, whatsapp_template, whatsapp_prefix, created_at, updated_at)
		VALUES ($1, $2, true, $3, $4, $5, $6, $7, now(), now())
		RETURNING ` + tenantColumns

	created, err := scanTenant(s.pool.QueryRow(ctx, query,
		t.Name,
		strings.ToLower(strings.TrimSpace(t.Subdomain)),
		t.Theme.PrimaryColor,
		t.Theme.SecondaryColor,
		t.Theme.HeroImageURL,
		t.WhatsAppTemplate,
		t.WhatsAppPrefix,
	))
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return created, nil
}

func (s *TenantStore) Update(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	query := `
		UPDATE tenants
		SET name = $2, primary_color = $3, secondary_color = $4, hero_image_url = $5,
			whatsapp_template = $6, whatsapp_prefix = $7, updated_at = now()
		WHERE id = $1
		RETURNING ` + tenantColumns

	updated, err := scanTenant(s.pool.QueryRow(ctx, query,
		t.ID,
		t.Name,
		t.Theme.PrimaryColor,
		t.Theme.SecondaryColor,
		t.Theme.HeroImageURL,
		t.WhatsAppTemplate,
		t.WhatsAppPrefix,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return updated, nil
}

func (s *TenantStore) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	query := `
		UPDATE tenants
		SET active = $2, updated_at = now()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, tenantID, active)
	if err != nil {
		return fmt.Errorf("set tenant active: %w", err)
	}
	return nil
}

func (s *TenantStore) GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1`

	t, err := scanTenant(s.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetActiveBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE lower(subdomain) = lower($1) AND active`

	t, err := scanTenant(s.pool.QueryRow(ctx, query, strings.TrimSpace(subdomain)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant by subdomain: %w", err)
	}
	return t, nil
}

func (s *TenantStore) List(ctx context.Context) ([]models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
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
