package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/koombo/koombo/internal/models"
)

// Prices travel as text on the wire (price::text on the way out, $n::numeric
// on the way in) and live as decimal.Decimal in Go. Never float64 — binary
// floats and money don't mix.
const menuItemColumns = `id, tenant_id, category_id, name, description, price::text,
	available, featured, image_url, created_at, updated_at`

type MenuStore struct {
	pool *pgxpool.Pool
}

func NewMenuStore(pool *pgxpool.Pool) *MenuStore {
	return &MenuStore{pool: pool}
}

func scanMenuItem(row pgx.Row) (*models.MenuItem, error) {
	var (
		item  models.MenuItem
		price string
	)
	err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.CategoryID,
		&item.Name,
		&item.Description,
		&price,
		&item.Available,
		&item.Featured,
		&item.ImageURL,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &item, nil
}

func (s *MenuStore) CreateItem(ctx context.Context, item *models.MenuItem) (*models.MenuItem, error) {
	query := `
		INSERT INTO menu_items (tenant_id, category_id, name, description, price,
			available, featured, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, now(), now())
		RETURNING ` + menuItemColumns

	created, err := scanMenuItem(s.pool.QueryRow(ctx, query,
		item.TenantID,
		item.CategoryID,
		item.Name,
		item.Description,
		item.Price.String(),
		item.Available,
		item.Featured,
		item.ImageURL,
	))
	if err != nil {
		return nil, fmt.Errorf("insert menu item: %w", err)
	}
	return created, nil
}

func (s *MenuStore) UpdateItem(ctx context.Context, item *models.MenuItem) (*models.MenuItem, error) {
	// tenant_id in the WHERE clause, always: an admin of tenant A must not
	// be able to edit tenant B's items by guessing UUIDs.
	query := `
		UPDATE menu_items
		SET category_id = $3, name = $4, description = $5, price = $6::numeric,
			available = $7, featured = $8, image_url = $9, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + menuItemColumns

	updated, err := scanMenuItem(s.pool.QueryRow(ctx, query,
		item.ID,
		item.TenantID,
		item.CategoryID,
		item.Name,
		item.Description,
		item.Price.String(),
		item.Available,
		item.Featured,
		item.ImageURL,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update menu item: %w", err)
	}
	return updated, nil
}

func (s *MenuStore) DeleteItem(ctx context.Context, tenantID, itemID uuid.UUID) error {
	query := `
		DELETE FROM menu_items
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, itemID, tenantID)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	return nil
}

func (s *MenuStore) GetItem(ctx context.Context, tenantID, itemID uuid.UUID) (*models.MenuItem, error) {
	query := `
		SELECT ` + menuItemColumns + `
		FROM menu_items
		WHERE id = $1 AND tenant_id = $2`

	item, err := scanMenuItem(s.pool.QueryRow(ctx, query, itemID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	return item, nil
}

func (s *MenuStore) ListItems(ctx context.Context, tenantID uuid.UUID, availableOnly bool) ([]models.MenuItem, error) {
	query := `
		SELECT ` + menuItemColumns + `
		FROM menu_items
		WHERE tenant_id = $1`
	if availableOnly {
		query += ` AND available`
	}
	query += `
		ORDER BY created_at ASC`

	return s.listItems(ctx, query, tenantID)
}

func (s *MenuStore) ListFeatured(ctx context.Context, tenantID uuid.UUID) ([]models.MenuItem, error) {
	query := `
		SELECT ` + menuItemColumns + `
		FROM menu_items
		WHERE tenant_id = $1 AND featured AND available
		ORDER BY created_at ASC`

	return s.listItems(ctx, query, tenantID)
}

func (s *MenuStore) listItems(ctx context.Context, query string, args ...any) ([]models.MenuItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	items := make([]models.MenuItem, 0)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}

	return items, nil
}

func (s *MenuStore) CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	query := `
		INSERT INTO categories (tenant_id, name, position)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, name, position`

	var created models.Category
	err := s.pool.QueryRow(ctx, query, c.TenantID, c.Name, c.Position).Scan(
		&created.ID,
		&created.TenantID,
		&created.Name,
		&created.Position,
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &created, nil
}

func (s *MenuStore) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]models.Category, error) {
	query := `
		SELECT id, tenant_id, name, position
		FROM categories
		WHERE tenant_id = $1
		ORDER BY position ASC, name ASC`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Position); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

func (s *MenuStore) DeleteCategory(ctx context.Context, tenantID, categoryID uuid.UUID) error {
	query := `
		DELETE FROM categories
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, categoryID, tenantID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
