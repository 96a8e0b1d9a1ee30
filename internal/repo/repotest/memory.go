// Package repotest provides an in-memory repo.Store for tests.
package repotest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
)

// Store keeps everything in maps. InTx works on a copy and swaps it in only
// when the callback succeeds, so aborted transactions leave no trace.
type Store struct {
	mu   sync.Mutex
	data *state

	// Fail makes the named method (e.g. "AppendInteraction") return the error.
	Fail map[string]error
}

type state struct {
	customers    map[uuid.UUID]model.Customer
	shipments    map[uuid.UUID]model.Shipment
	interactions []model.DeliveryInteraction
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: &state{
			customers: map[uuid.UUID]model.Customer{},
			shipments: map[uuid.UUID]model.Shipment{},
		},
		Fail: map[string]error{},
	}
}

func (s *state) clone() *state {
	return &state{
		customers:    maps.Clone(s.customers),
		shipments:    maps.Clone(s.shipments),
		interactions: slices.Clone(s.interactions),
	}
}

func (s *Store) view() *view {
	return &view{st: s.data, fail: s.Fail}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.fail("Ping")
}

func (s *Store) InTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("InTx"); err != nil {
		return err
	}

	staged := s.data.clone()
	if err := fn(&view{st: staged, fail: s.Fail}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

func (s *Store) fail(op string) error {
	return s.Fail[op]
}

// Interactions returns a copy of the committed interaction log.
func (s *Store) Interactions() []model.DeliveryInteraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.interactions)
}

func (s *Store) SeedCustomer(c model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.customers[c.ID] = c
}

func (s *Store) SeedShipment(sh model.Shipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.shipments[sh.ID] = sh
}

func (s *Store) CreateCustomer(ctx context.Context, c model.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateCustomer(ctx, c)
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetCustomer(ctx, id)
}

func (s *Store) ListCustomers(ctx context.Context, limit, offset int) ([]model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListCustomers(ctx, limit, offset)
}

func (s *Store) UpdateCustomer(ctx context.Context, c model.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateCustomer(ctx, c)
}

func (s *Store) DeactivateCustomer(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeactivateCustomer(ctx, id, at)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindCustomerByPhone(ctx, phone)
}

func (s *Store) CreateShipment(ctx context.Context, sh model.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateShipment(ctx, sh)
}

func (s *Store) GetShipment(ctx context.Context, id uuid.UUID) (model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetShipment(ctx, id)
}

func (s *Store) ListShipments(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListShipments(ctx, customerID, limit, offset)
}

func (s *Store) FindShipment(ctx context.Context, customerID uuid.UUID, description string, planned time.Time) (model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindShipment(ctx, customerID, description, planned)
}

func (s *Store) FindMostRecentPendingShipment(ctx context.Context, customerID uuid.UUID) (model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindMostRecentPendingShipment(ctx, customerID)
}

func (s *Store) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to model.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateShipmentStatus(ctx, id, from, to, at)
}

func (s *Store) AppendInteraction(ctx context.Context, i model.DeliveryInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendInteraction(ctx, i)
}

func (s *Store) ListInteractions(ctx context.Context, shipmentID uuid.UUID) ([]model.DeliveryInteraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListInteractions(ctx, shipmentID)
}

type view struct {
	st   *state
	fail map[string]error
}

func (v *view) CreateCustomer(ctx context.Context, c model.Customer) error {
	if err := v.fail["CreateCustomer"]; err != nil {
		return err
	}
	if _, ok := v.st.customers[c.ID]; ok {
		return fmt.Errorf("create customer: %w: id", repo.ErrConflict)
	}
	if c.Active && v.phoneTaken(c.Phone, c.ID) {
		return fmt.Errorf("create customer: %w: phone", repo.ErrConflict)
	}
	v.st.customers[c.ID] = c
	return nil
}

func (v *view) phoneTaken(phone string, except uuid.UUID) bool {
	for _, other := range v.st.customers {
		if other.Active && other.Phone == phone && other.ID != except {
			return true
		}
	}
	return false
}

func (v *view) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	if err := v.fail["GetCustomer"]; err != nil {
		return model.Customer{}, err
	}
	c, ok := v.st.customers[id]
	if !ok {
		return model.Customer{}, fmt.Errorf("get customer %s: %w", id, repo.ErrNotFound)
	}
	return c, nil
}

func (v *view) ListCustomers(ctx context.Context, limit, offset int) ([]model.Customer, error) {
	if err := v.fail["ListCustomers"]; err != nil {
		return nil, err
	}
	out := slices.Collect(maps.Values(v.st.customers))
	slices.SortFunc(out, func(a, b model.Customer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(out, limit, offset), nil
}

func (v *view) UpdateCustomer(ctx context.Context, c model.Customer) error {
	if err := v.fail["UpdateCustomer"]; err != nil {
		return err
	}
	cur, ok := v.st.customers[c.ID]
	if !ok || !cur.Active {
		return fmt.Errorf("update customer %s: %w", c.ID, repo.ErrNotFound)
	}
	if v.phoneTaken(c.Phone, c.ID) {
		return fmt.Errorf("update customer %s: %w: phone", c.ID, repo.ErrConflict)
	}
	c.Active = cur.Active
	c.CreatedAt = cur.CreatedAt
	v.st.customers[c.ID] = c
	return nil
}

func (v *view) DeactivateCustomer(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := v.fail["DeactivateCustomer"]; err != nil {
		return err
	}
	c, ok := v.st.customers[id]
	if !ok || !c.Active {
		return fmt.Errorf("deactivate customer %s: %w", id, repo.ErrNotFound)
	}
	c.Active = false
	c.UpdatedAt = at
	v.st.customers[id] = c
	return nil
}

func (v *view) FindCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	if err := v.fail["FindCustomerByPhone"]; err != nil {
		return model.Customer{}, err
	}
	for _, c := range v.st.customers {
		if c.Active && c.Phone == phone {
			return c, nil
		}
	}
	return model.Customer{}, fmt.Errorf("find customer by phone: %w", repo.ErrNotFound)
}

func (v *view) CreateShipment(ctx context.Context, sh model.Shipment) error {
	if err := v.fail["CreateShipment"]; err != nil {
		return err
	}
	if _, ok := v.st.customers[sh.CustomerID]; !ok {
		return fmt.Errorf("create shipment: unknown customer %s", sh.CustomerID)
	}
	v.st.shipments[sh.ID] = sh
	return nil
}

func (v *view) GetShipment(ctx context.Context, id uuid.UUID) (model.Shipment, error) {
	if err := v.fail["GetShipment"]; err != nil {
		return model.Shipment{}, err
	}
	sh, ok := v.st.shipments[id]
	if !ok {
		return model.Shipment{}, fmt.Errorf("get shipment %s: %w", id, repo.ErrNotFound)
	}
	return sh, nil
}

func (v *view) ListShipments(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]model.Shipment, error) {
	if err := v.fail["ListShipments"]; err != nil {
		return nil, err
	}
	var out []model.Shipment
	for _, sh := range v.st.shipments {
		if customerID != nil && sh.CustomerID != *customerID {
			continue
		}
		out = append(out, sh)
	}
	slices.SortFunc(out, func(a, b model.Shipment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, limit, offset), nil
}

func (v *view) FindShipment(ctx context.Context, customerID uuid.UUID, description string, planned time.Time) (model.Shipment, error) {
	if err := v.fail["FindShipment"]; err != nil {
		return model.Shipment{}, err
	}
	for _, sh := range v.st.shipments {
		if sh.CustomerID == customerID && sh.Description == description && sh.PlannedDeliveryTime.Equal(planned) {
			return sh, nil
		}
	}
	return model.Shipment{}, fmt.Errorf("find shipment: %w", repo.ErrNotFound)
}

func (v *view) FindMostRecentPendingShipment(ctx context.Context, customerID uuid.UUID) (model.Shipment, error) {
	if err := v.fail["FindMostRecentPendingShipment"]; err != nil {
		return model.Shipment{}, err
	}
	var (
		best  model.Shipment
		found bool
	)
	for _, sh := range v.st.shipments {
		if sh.CustomerID != customerID || sh.Status != model.Pending {
			continue
		}
		if !found || sh.CreatedAt.After(best.CreatedAt) {
			best, found = sh, true
		}
	}
	if !found {
		return model.Shipment{}, fmt.Errorf("find pending shipment: %w", repo.ErrNotFound)
	}
	return best, nil
}

func (v *view) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to model.Status, at time.Time) error {
	if err := v.fail["UpdateShipmentStatus"]; err != nil {
		return err
	}
	sh, ok := v.st.shipments[id]
	if !ok || sh.Status != from {
		return fmt.Errorf("update shipment %s status: %w", id, repo.ErrStatusConflict)
	}
	sh.Status = to
	sh.UpdatedAt = at
	v.st.shipments[id] = sh
	return nil
}

func (v *view) AppendInteraction(ctx context.Context, i model.DeliveryInteraction) error {
	if err := v.fail["AppendInteraction"]; err != nil {
		return err
	}
	v.st.interactions = append(v.st.interactions, i)
	return nil
}

func (v *view) ListInteractions(ctx context.Context, shipmentID uuid.UUID) ([]model.DeliveryInteraction, error) {
	if err := v.fail["ListInteractions"]; err != nil {
		return nil, err
	}
	out := make([]model.DeliveryInteraction, 0)
	for _, i := range v.st.interactions {
		if i.ShipmentID != nil && *i.ShipmentID == shipmentID {
			out = append(out, i)
		}
	}
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
