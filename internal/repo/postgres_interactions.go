package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (r *queries) AppendInteraction(ctx context.Context, i model.DeliveryInteraction) error {
	var code sql.NullString
	if i.ResponseCode != nil {
		code = sql.NullString{String: *i.ResponseCode, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO delivery_interaction
			(id, shipment_id, customer_id, contact, channel, direction, content, response_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		i.ID,
		nullUUID(i.ShipmentID),
		nullUUID(i.CustomerID),
		i.Contact,
		string(i.Channel),
		string(i.Direction),
		i.Content,
		code,
		i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append interaction: %w", mapError(err))
	}
	return nil
}

func (r *queries) ListInteractions(ctx context.Context, shipmentID uuid.UUID) ([]model.DeliveryInteraction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, shipment_id, customer_id, contact, channel, direction, content, response_code, created_at
		FROM delivery_interaction
		WHERE shipment_id = $1
		ORDER BY created_at ASC
	`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	out := make([]model.DeliveryInteraction, 0)
	for rows.Next() {
		var (
			i         model.DeliveryInteraction
			shipment  uuid.NullUUID
			customer  uuid.NullUUID
			channel   string
			direction string
			code      sql.NullString
		)
		if err := rows.Scan(&i.ID, &shipment, &customer, &i.Contact, &channel, &direction, &i.Content, &code, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("list interactions: scan row: %w", err)
		}
		if shipment.Valid {
			id := shipment.UUID
			i.ShipmentID = &id
		}
		if customer.Valid {
			id := customer.UUID
			i.CustomerID = &id
		}
		if code.Valid {
			s := code.String
			i.ResponseCode = &s
		}
		i.Channel = model.Channel(channel)
		i.Direction = model.Direction(direction)
		i.CreatedAt = i.CreatedAt.In(r.loc)
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list interactions: row iteration: %w", err)
	}
	return out, nil
}
