package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/events"
	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/reply"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
)

// PromptSender is the part of Notifier the management flows need.
type PromptSender interface {
	Enabled() bool
	SendPrompt(ctx context.Context, cust model.Customer, s model.Shipment) (string, error)
}

type CustomerInput struct {
	Name               string
	Phone              string
	DeliveryHoursOpen  *model.TimeOfDay
	DeliveryHoursClose *model.TimeOfDay
	Timezone           string
}

// CustomerPatch updates only the non-nil fields.
type CustomerPatch struct {
	Name               *string
	Phone              *string
	DeliveryHoursOpen  *model.TimeOfDay
	DeliveryHoursClose *model.TimeOfDay
	Timezone           *string
}

type ShipmentInput struct {
	CustomerID          uuid.UUID
	Description         string
	PlannedDeliveryTime time.Time
}

// Shipments manages customers and shipments outside the reply flow.
type Shipments struct {
	store     repo.Store
	prompts   PromptSender
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
}

func NewShipments(store repo.Store, prompts PromptSender, publisher events.Publisher, loc *time.Location) *Shipments {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Shipments{
		store:     store,
		prompts:   prompts,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *Shipments) WithClock(now func() time.Time) *Shipments {
	s.now = now
	return s
}

// Location is the reference timezone for naive planned times.
func (s *Shipments) Location() *time.Location {
	return s.loc
}

// CanonicalPhone applies the same canonicalization used to match replies.
func CanonicalPhone(raw string) string {
	phone, _ := reply.CanonicalContact(raw)
	return phone
}

func (s *Shipments) CreateCustomer(ctx context.Context, in CustomerInput) (model.Customer, error) {
	now := s.now()
	c := model.Customer{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(in.Name),
		Phone:              CanonicalPhone(in.Phone),
		DeliveryHoursOpen:  model.DefaultHoursOpen,
		DeliveryHoursClose: model.DefaultHoursClose,
		Timezone:           model.DefaultTimezone,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.DeliveryHoursOpen != nil {
		c.DeliveryHoursOpen = *in.DeliveryHoursOpen
	}
	if in.DeliveryHoursClose != nil {
		c.DeliveryHoursClose = *in.DeliveryHoursClose
	}
	if in.Timezone != "" {
		c.Timezone = in.Timezone
	}
	if err := validateCustomer(c); err != nil {
		return model.Customer{}, err
	}

	if err := s.store.CreateCustomer(ctx, c); err != nil {
		return model.Customer{}, err
	}
	slog.Info("customer created", "customer_id", c.ID.String())
	return c, nil
}

func (s *Shipments) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

func (s *Shipments) ListCustomers(ctx context.Context, limit, offset int) ([]model.Customer, error) {
	return s.store.ListCustomers(ctx, limit, offset)
}

func (s *Shipments) UpdateCustomer(ctx context.Context, id uuid.UUID, p CustomerPatch) (model.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return model.Customer{}, err
	}
	if !c.Active {
		return model.Customer{}, fmt.Errorf("update customer %s: %w", id, repo.ErrNotFound)
	}

	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		c.Phone = CanonicalPhone(*p.Phone)
	}
	if p.DeliveryHoursOpen != nil {
		c.DeliveryHoursOpen = *p.DeliveryHoursOpen
	}
	if p.DeliveryHoursClose != nil {
		c.DeliveryHoursClose = *p.DeliveryHoursClose
	}
	if p.Timezone != nil {
		c.Timezone = *p.Timezone
	}
	if err := validateCustomer(c); err != nil {
		return model.Customer{}, err
	}
	c.UpdatedAt = s.now()

	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

// DeactivateCustomer is the delete operation. The row is kept so its
// shipments and interactions stay readable.
func (s *Shipments) DeactivateCustomer(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeactivateCustomer(ctx, id, s.now()); err != nil {
		return err
	}
	slog.Info("customer deactivated", "customer_id", id.String())
	return nil
}

// CreateShipment stores a pending shipment and then prompts the customer.
// A failed prompt does not undo the shipment.
func (s *Shipments) CreateShipment(ctx context.Context, in ShipmentInput) (model.Shipment, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return model.Shipment{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if in.PlannedDeliveryTime.IsZero() {
		return model.Shipment{}, fmt.Errorf("%w: planned_delivery_time is required", ErrInvalidInput)
	}

	cust, err := s.store.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return model.Shipment{}, err
	}
	if !cust.Active {
		return model.Shipment{}, fmt.Errorf("create shipment for %s: %w", cust.ID, ErrCustomerInactive)
	}

	sh := model.NewShipment(cust.ID, desc, in.PlannedDeliveryTime, s.loc, s.now())
	if err := s.store.CreateShipment(ctx, sh); err != nil {
		return model.Shipment{}, err
	}
	slog.Info("shipment created", "shipment_id", sh.ID.String(), "customer_id", cust.ID.String())

	if s.prompts != nil && s.prompts.Enabled() && cust.Phone != "" {
		// Errors are logged and counted by the sender.
		_, _ = s.prompts.SendPrompt(ctx, cust, sh)
	}
	return sh, nil
}

func (s *Shipments) GetShipment(ctx context.Context, id uuid.UUID) (model.Shipment, error) {
	return s.store.GetShipment(ctx, id)
}

func (s *Shipments) ListShipments(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]model.Shipment, error) {
	return s.store.ListShipments(ctx, customerID, limit, offset)
}

func (s *Shipments) ListInteractions(ctx context.Context, shipmentID uuid.UUID) ([]model.DeliveryInteraction, error) {
	if _, err := s.store.GetShipment(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.store.ListInteractions(ctx, shipmentID)
}

// ChangeStatus applies a manual transition such as rejected -> rescheduled or
// confirmed -> delivered.
func (s *Shipments) ChangeStatus(ctx context.Context, id uuid.UUID, to model.Status) (model.Shipment, error) {
	now := s.now()

	var (
		updated model.Shipment
		from    model.Status
	)
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		sh, err := tx.GetShipment(ctx, id)
		if err != nil {
			return err
		}
		next, err := sh.Status.Transition(to)
		if err != nil {
			return err
		}
		if err := tx.UpdateShipmentStatus(ctx, sh.ID, sh.Status, next, now); err != nil {
			return err
		}
		from = sh.Status
		sh.Status = next
		sh.UpdatedAt = now
		updated = sh
		return nil
	})
	if err != nil {
		return model.Shipment{}, fmt.Errorf("change shipment %s status: %w", id, err)
	}

	change := model.StatusChange{
		ShipmentID: updated.ID,
		CustomerID: updated.CustomerID,
		From:       from,
		To:         updated.Status,
		Source:     "manual",
		At:         now,
	}
	if err := s.publisher.PublishStatusChange(ctx, change); err != nil {
		slog.Warn("status change event not published", "shipment_id", id.String(), "err", err)
	}
	return updated, nil
}

func validateCustomer(c model.Customer) error {
	var problems []string
	if c.Name == "" {
		problems = append(problems, "name is required")
	}
	if c.Phone == "" {
		problems = append(problems, "phone is required")
	}
	if _, err := model.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
