package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo/repotest"
	"github.com/LeventeLantos/delivery-confirmation/internal/service"
)

type fakePrompts struct {
	mu      sync.Mutex
	enabled bool
	sent    []uuid.UUID
}

func (f *fakePrompts) Enabled() bool { return f.enabled }

func (f *fakePrompts) SendPrompt(ctx context.Context, cust model.Customer, s model.Shipment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s.ID)
	return "SM1", nil
}

func newShipments(t *testing.T, prompts service.PromptSender) (*service.Shipments, *repotest.Store, *fakePublisher) {
	t.Helper()
	store := repotest.New()
	pub := &fakePublisher{}
	svc := service.NewShipments(store, prompts, pub, madrid(t)).WithClock(fixedClock())
	return svc, store, pub
}

func TestCreateCustomer_CanonicalizesPhoneAndDefaults(t *testing.T) {
	t.Parallel()

	svc, _, _ := newShipments(t, nil)

	c, err := svc.CreateCustomer(context.Background(), service.CustomerInput{
		Name:  "  Bar Pepe ",
		Phone: "whatsapp:+34 600-111-222",
	})
	if err != nil {
		t.Fatalf("CreateCustomer() error: %v", err)
	}
	if c.Phone != testPhone {
		t.Fatalf("expected canonical phone %q, got %q", testPhone, c.Phone)
	}
	if c.Name != "Bar Pepe" {
		t.Fatalf("expected trimmed name, got %q", c.Name)
	}
	if c.DeliveryHoursOpen != model.DefaultHoursOpen || c.DeliveryHoursClose != model.DefaultHoursClose {
		t.Fatalf("expected default delivery hours, got %s-%s", c.DeliveryHoursOpen, c.DeliveryHoursClose)
	}
	if c.Timezone != model.DefaultTimezone || !c.Active {
		t.Fatalf("unexpected customer: %+v", c)
	}
	if !c.CreatedAt.Equal(fixedClock()()) {
		t.Fatalf("expected CreatedAt from clock, got %v", c.CreatedAt)
	}
}

func TestCreateCustomer_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newShipments(t, nil)

	cases := []service.CustomerInput{
		{Name: "", Phone: testPhone},
		{Name: "A", Phone: " "},
		{Name: "A", Phone: testPhone, Timezone: "Mars/Olympus"},
	}
	for _, in := range cases {
		if _, err := svc.CreateCustomer(context.Background(), in); !errors.Is(err, service.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
}

func TestCreateCustomer_DuplicatePhoneConflicts(t *testing.T) {
	t.Parallel()

	svc, _, _ := newShipments(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateCustomer(ctx, service.CustomerInput{Name: "A", Phone: testPhone}); err != nil {
		t.Fatalf("first CreateCustomer() error: %v", err)
	}
	_, err := svc.CreateCustomer(ctx, service.CustomerInput{Name: "B", Phone: "+34 600 111 222"})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateCustomer_AppliesPatch(t *testing.T) {
	t.Parallel()

	svc, _, _ := newShipments(t, nil)
	ctx := context.Background()

	c, err := svc.CreateCustomer(ctx, service.CustomerInput{Name: "A", Phone: testPhone})
	if err != nil {
		t.Fatalf("CreateCustomer() error: %v", err)
	}

	name := "Bar Nuevo"
	closeAt := model.TimeOfDay{Hour: 20, Minute: 30}
	updated, err := svc.UpdateCustomer(ctx, c.ID, service.CustomerPatch{Name: &name, DeliveryHoursClose: &closeAt})
	if err != nil {
		t.Fatalf("UpdateCustomer() error: %v", err)
	}
	if updated.Name != name || updated.DeliveryHoursClose != closeAt {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Phone != testPhone || updated.DeliveryHoursOpen != model.DefaultHoursOpen {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	if _, err := svc.UpdateCustomer(ctx, uuid.New(), service.CustomerPatch{Name: &name}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestCreateShipment_SendsPromptAndNormalizesTime(t *testing.T) {
	t.Parallel()

	prompts := &fakePrompts{enabled: true}
	svc, store, _ := newShipments(t, prompts)
	ctx := context.Background()

	c, err := svc.CreateCustomer(ctx, service.CustomerInput{Name: "A", Phone: testPhone})
	if err != nil {
		t.Fatalf("CreateCustomer() error: %v", err)
	}

	planned := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	sh, err := svc.CreateShipment(ctx, service.ShipmentInput{
		CustomerID:          c.ID,
		Description:         "Pedido A",
		PlannedDeliveryTime: planned,
	})
	if err != nil {
		t.Fatalf("CreateShipment() error: %v", err)
	}
	if sh.Status != model.Pending {
		t.Fatalf("expected pending, got %q", sh.Status)
	}
	if sh.PlannedDeliveryTime.Location().String() != "Europe/Madrid" || sh.PlannedDeliveryTime.Hour() != 10 {
		t.Fatalf("expected planned time in Madrid at 10:00, got %v", sh.PlannedDeliveryTime)
	}
	if len(prompts.sent) != 1 || prompts.sent[0] != sh.ID {
		t.Fatalf("expected one prompt for %s, got %+v", sh.ID, prompts.sent)
	}
	if _, err := store.GetShipment(ctx, sh.ID); err != nil {
		t.Fatalf("expected stored shipment: %v", err)
	}
}

func TestCreateShipment_Rejections(t *testing.T) {
	t.Parallel()

	prompts := &fakePrompts{enabled: true}
	svc, _, _ := newShipments(t, prompts)
	ctx := context.Background()
	planned := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, err := svc.CreateShipment(ctx, service.ShipmentInput{CustomerID: uuid.New(), Description: "x", PlannedDeliveryTime: planned}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown customer, got %v", err)
	}

	c, err := svc.CreateCustomer(ctx, service.CustomerInput{Name: "A", Phone: testPhone})
	if err != nil {
		t.Fatalf("CreateCustomer() error: %v", err)
	}
	if _, err := svc.CreateShipment(ctx, service.ShipmentInput{CustomerID: c.ID, Description: " ", PlannedDeliveryTime: planned}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty description, got %v", err)
	}

	if err := svc.DeactivateCustomer(ctx, c.ID); err != nil {
		t.Fatalf("DeactivateCustomer() error: %v", err)
	}
	if _, err := svc.CreateShipment(ctx, service.ShipmentInput{CustomerID: c.ID, Description: "x", PlannedDeliveryTime: planned}); !errors.Is(err, service.ErrCustomerInactive) {
		t.Fatalf("expected ErrCustomerInactive, got %v", err)
	}
	if len(prompts.sent) != 0 {
		t.Fatalf("expected no prompts, got %d", len(prompts.sent))
	}
}

func TestChangeStatus(t *testing.T) {
	t.Parallel()

	svc, store, pub := newShipments(t, nil)
	ctx := context.Background()

	cust := seedCustomer(store, testPhone, true)
	sh := seedShipment(store, cust.ID, "Pedido A", time.Now(), model.Pending, time.Now())

	if _, err := svc.ChangeStatus(ctx, sh.ID, model.Delivered); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending -> delivered, got %v", err)
	}

	got, err := svc.ChangeStatus(ctx, sh.ID, model.Rejected)
	if err != nil {
		t.Fatalf("ChangeStatus(rejected) error: %v", err)
	}
	if got.Status != model.Rejected {
		t.Fatalf("expected rejected, got %q", got.Status)
	}
	if got, err = svc.ChangeStatus(ctx, sh.ID, model.Rescheduled); err != nil || got.Status != model.Rescheduled {
		t.Fatalf("expected rescheduled, got %q err=%v", got.Status, err)
	}

	changes := pub.Changes()
	if len(changes) != 2 {
		t.Fatalf("expected 2 events, got %d", len(changes))
	}
	if changes[1].From != model.Rejected || changes[1].To != model.Rescheduled || changes[1].Source != "manual" {
		t.Fatalf("unexpected event: %+v", changes[1])
	}

	if _, err := svc.ChangeStatus(ctx, uuid.New(), model.Confirmed); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInteractions_UnknownShipment(t *testing.T) {
	t.Parallel()

	svc, _, _ := newShipments(t, nil)
	if _, err := svc.ListInteractions(context.Background(), uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
