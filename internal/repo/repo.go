package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrStatusConflict = errors.New("shipment status changed concurrently")
)

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, c model.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error)
	ListCustomers(ctx context.Context, limit, offset int) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer) error
	DeactivateCustomer(ctx context.Context, id uuid.UUID, at time.Time) error
	// FindCustomerByPhone only matches active customers.
	FindCustomerByPhone(ctx context.Context, phone string) (model.Customer, error)
}

type ShipmentRepository interface {
	CreateShipment(ctx context.Context, s model.Shipment) error
	GetShipment(ctx context.Context, id uuid.UUID) (model.Shipment, error)
	ListShipments(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]model.Shipment, error)
	FindShipment(ctx context.Context, customerID uuid.UUID, description string, planned time.Time) (model.Shipment, error)
	// FindMostRecentPendingShipment returns the newest pending shipment of the
	// customer. Inside a transaction the row stays locked until commit.
	FindMostRecentPendingShipment(ctx context.Context, customerID uuid.UUID) (model.Shipment, error)
	// UpdateShipmentStatus moves the shipment from -> to and fails with
	// ErrStatusConflict when the stored status is no longer from.
	UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to model.Status, at time.Time) error
}

type InteractionRepository interface {
	AppendInteraction(ctx context.Context, i model.DeliveryInteraction) error
	ListInteractions(ctx context.Context, shipmentID uuid.UUID) ([]model.DeliveryInteraction, error)
}

type Tx interface {
	CustomerRepository
	ShipmentRepository
	InteractionRepository
}

// Store runs single calls directly and grouped writes through InTx, which
// commits only when fn returns nil.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
