package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo/repotest"
)

const testPhone = "+34600111222"

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := model.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func seedCustomer(store *repotest.Store, phone string, active bool) model.Customer {
	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	c := model.Customer{
		ID:                 uuid.New(),
		Name:               "Bar Pepe",
		Phone:              phone,
		DeliveryHoursOpen:  model.DefaultHoursOpen,
		DeliveryHoursClose: model.DefaultHoursClose,
		Timezone:           model.DefaultTimezone,
		Active:             active,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	store.SeedCustomer(c)
	return c
}

func seedShipment(store *repotest.Store, customerID uuid.UUID, desc string, planned time.Time, status model.Status, createdAt time.Time) model.Shipment {
	sh := model.Shipment{
		ID:                  uuid.New(),
		CustomerID:          customerID,
		Description:         desc,
		PlannedDeliveryTime: planned,
		Status:              status,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
	store.SeedShipment(sh)
	return sh
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []model.StatusChange
}

func (p *fakePublisher) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Changes() []model.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.StatusChange(nil), p.changes...)
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
