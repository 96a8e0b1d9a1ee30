package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

const customerColumns = `id, name, phone, delivery_hours_open, delivery_hours_close, timezone, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *queries) scanCustomer(row rowScanner) (model.Customer, error) {
	var c model.Customer
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Phone,
		&c.DeliveryHoursOpen,
		&c.DeliveryHoursClose,
		&c.Timezone,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return model.Customer{}, err
	}
	c.CreatedAt = c.CreatedAt.In(r.loc)
	c.UpdatedAt = c.UpdatedAt.In(r.loc)
	return c, nil
}

func (r *queries) CreateCustomer(ctx context.Context, c model.Customer) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customer (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, c.Phone, c.DeliveryHoursOpen, c.DeliveryHoursClose, c.Timezone, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create customer: %w", mapError(err))
	}
	return nil
}

func (r *queries) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customer WHERE id = $1`, id)
	c, err := r.scanCustomer(row)
	if err != nil {
		return model.Customer{}, fmt.Errorf("get customer %s: %w", id, mapError(err))
	}
	return c, nil
}

func (r *queries) ListCustomers(ctx context.Context, limit, offset int) ([]model.Customer, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customer
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	out := make([]model.Customer, 0)
	for rows.Next() {
		c, err := r.scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("list customers: scan row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers: row iteration: %w", err)
	}
	return out, nil
}

func (r *queries) UpdateCustomer(ctx context.Context, c model.Customer) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE customer
		SET name = $2,
		    phone = $3,
		    delivery_hours_open = $4,
		    delivery_hours_close = $5,
		    timezone = $6,
		    updated_at = $7
		WHERE id = $1 AND active
	`, c.ID, c.Name, c.Phone, c.DeliveryHoursOpen, c.DeliveryHoursClose, c.Timezone, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update customer %s: %w", c.ID, mapError(err))
	}
	return expectOneRow(res, fmt.Sprintf("update customer %s", c.ID), ErrNotFound)
}

func (r *queries) DeactivateCustomer(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE customer
		SET active = FALSE, updated_at = $2
		WHERE id = $1 AND active
	`, id, at)
	if err != nil {
		return fmt.Errorf("deactivate customer %s: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("deactivate customer %s", id), ErrNotFound)
}

func (r *queries) FindCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customer
		WHERE phone = $1 AND active
	`, phone)
	c, err := r.scanCustomer(row)
	if err != nil {
		return model.Customer{}, fmt.Errorf("find customer by phone: %w", mapError(err))
	}
	return c, nil
}
