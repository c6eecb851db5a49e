package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/koombo/koombo/internal/models"
)

const orderColumns = `id, tenant_id, customer_name, customer_phone, customer_email,
	delivery_address, items, total::text, payment_method, notes, status, created_at, updated_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o     models.Order
		items []byte
		total string
	)
	err := row.Scan(
		&o.ID,
		&o.TenantID,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.CustomerEmail,
		&o.DeliveryAddress,
		&items,
		&total,
		&o.PaymentMethod,
		&o.Notes,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	o.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total %q: %w", total, err)
	}
	return &o, nil
}

// Create persists a placed order. The line items go in as a jsonb snapshot —
// they reference no menu_items row, so later menu edits can't touch them.
func (s *OrderStore) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}

	query := `
		INSERT INTO orders (tenant_id, customer_name, customer_phone, customer_email,
			delivery_address, items, total, payment_method, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, now(), now())
		RETURNING ` + orderColumns

	created, err := scanOrder(s.pool.QueryRow(ctx, query,
		o.TenantID,
		o.CustomerName,
		o.CustomerPhone,
		o.CustomerEmail,
		o.DeliveryAddress,
		items,
		o.Total.String(),
		o.PaymentMethod,
		o.Notes,
		string(o.Status),
	))
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return created, nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateStatus writes status and updated_at and nothing else. It is a
// full-state write: concurrent conflicting transitions race, the last
// commit wins, and losers reconcile from the next realtime push.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	o, err := scanOrder(s.pool.QueryRow(ctx, query, orderID, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// ListOpen returns non-terminal orders for a kitchen board, oldest first
// (the ticket that has waited longest sits on top). includeLegacy widens
// the result to unscoped pre-multi-tenant orders — the documented
// compatibility rule, not an accident.
func (s *OrderStore) ListOpen(ctx context.Context, tenantID uuid.UUID, includeLegacy bool) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN ('pending', 'confirmed', 'preparing', 'ready')
		  AND (tenant_id = $1`
	if includeLegacy {
		query += ` OR tenant_id IS NULL`
	}
	query += `)
		ORDER BY created_at ASC`

	return s.listOrders(ctx, query, tenantID)
}

func (s *OrderStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return s.listOrders(ctx, query, tenantID, limit, offset)
}

func (s *OrderStore) listOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// Delete is the administrative purge — the only path that hard-deletes an
// order. Everything else only ever moves status forward.
func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	query := `
		DELETE FROM orders
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
