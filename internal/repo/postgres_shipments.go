package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

const shipmentColumns = `id, customer_id, description, planned_delivery_time, status, created_at, updated_at`

func (r *queries) scanShipment(row rowScanner) (model.Shipment, error) {
	var s model.Shipment
	var status string
	if err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&s.Description,
		&s.PlannedDeliveryTime,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return model.Shipment{}, err
	}
	s.Status = model.Status(status)
	s.PlannedDeliveryTime = s.PlannedDeliveryTime.In(r.loc)
	s.CreatedAt = s.CreatedAt.In(r.loc)
	s.UpdatedAt = s.UpdatedAt.In(r.loc)
	return s, nil
}

func (r *queries) CreateShipment(ctx context.Context, s model.Shipment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO shipment (`+shipmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.CustomerID, s.Description, s.PlannedDeliveryTime, string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create shipment: %w", mapError(err))
	}
	return nil
}

func (r *queries) GetShipment(ctx context.Context, id uuid.UUID) (model.Shipment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipment WHERE id = $1`, id)
	s, err := r.scanShipment(row)
	if err != nil {
		return model.Shipment{}, fmt.Errorf("get shipment %s: %w", id, mapError(err))
	}
	return s, nil
}

func (r *queries) ListShipments(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]model.Shipment, error) {
	limit, offset = clampPage(limit, offset)

	var filter uuid.NullUUID
	if customerID != nil {
		filter = uuid.NullUUID{UUID: *customerID, Valid: true}
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipment
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Shipment, 0)
	for rows.Next() {
		s, err := r.scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("list shipments: scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shipments: row iteration: %w", err)
	}
	return out, nil
}

func (r *queries) FindShipment(ctx context.Context, customerID uuid.UUID, description string, planned time.Time) (model.Shipment, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipment
		WHERE customer_id = $1 AND description = $2 AND planned_delivery_time = $3
		LIMIT 1
	`, customerID, description, planned)
	s, err := r.scanShipment(row)
	if err != nil {
		return model.Shipment{}, fmt.Errorf("find shipment: %w", mapError(err))
	}
	return s, nil
}

func (r *queries) FindMostRecentPendingShipment(ctx context.Context, customerID uuid.UUID) (model.Shipment, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipment
		WHERE customer_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, customerID)
	s, err := r.scanShipment(row)
	if err != nil {
		return model.Shipment{}, fmt.Errorf("find pending shipment: %w", mapError(err))
	}
	return s, nil
}

func (r *queries) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to model.Status, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE shipment
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("update shipment %s status: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("update shipment %s status %s -> %s", id, from, to), ErrStatusConflict)
}

func expectOneRow(res sql.Result, op string, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return nil
}
