// Package importer loads customers and shipments from the delivery sheet.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/metrics"
	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
	"github.com/LeventeLantos/delivery-confirmation/internal/service"
)

const defaultCustomerName = "Cliente sin nombre"

type Summary struct {
	Status            string   `json:"status"`
	Processed         int      `json:"processed"`
	CustomersCreated  int      `json:"customers_created"`
	CustomersExisting int      `json:"customers_existing"`
	ShipmentsCreated  int      `json:"shipments_created"`
	ShipmentsSkipped  int      `json:"shipments_skipped"`
	WhatsAppSent      int      `json:"whatsapp_sent"`
	WhatsAppErrors    int      `json:"whatsapp_errors"`
	Errors            []string `json:"errors"`
}

type Importer struct {
	store         repo.Store
	prompts       service.PromptSender
	loc           *time.Location
	defaultPrefix string
	now           func() time.Time

	mu         sync.Mutex
	lastPolled time.Time
}

func New(store repo.Store, prompts service.PromptSender, loc *time.Location, defaultPrefix string) *Importer {
	if defaultPrefix == "" {
		defaultPrefix = "34"
	}
	return &Importer{
		store:         store,
		prompts:       prompts,
		loc:           loc,
		defaultPrefix: strings.TrimPrefix(defaultPrefix, "+"),
		now:           time.Now,
	}
}

func (im *Importer) WithClock(now func() time.Time) *Importer {
	im.now = now
	return im
}

// ImportFile reads and imports the file at path. A cancelled import returns
// the partial summary together with the context error.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	sum := im.Import(ctx, rows)
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("import %s: %w", path, err)
	}
	return sum, nil
}

// PollFile imports path only when it changed since the last successful poll.
// The bool reports whether an import ran.
func (im *Importer) PollFile(ctx context.Context, path string) (Summary, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, false, fmt.Errorf("stat import file: %w", err)
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	if !info.ModTime().After(im.lastPolled) {
		return Summary{}, false, nil
	}
	// lastPolled only advances after a complete run, so a cancelled import
	// is retried on the next poll.
	sum, err := im.ImportFile(ctx, path)
	if err != nil {
		return sum, false, err
	}
	im.lastPolled = info.ModTime()
	return sum, true, nil
}

// planned is a row after validation, ready to be written.
type planned struct {
	phone       string
	name        string
	hoursOpen   model.TimeOfDay
	hoursClose  model.TimeOfDay
	hoursGiven  bool
	at          time.Time
	description string
}

type rowOutcome struct {
	customer        model.Customer
	shipment        model.Shipment
	customerCreated bool
	shipmentCreated bool
}

// Import processes rows one by one. A bad row is recorded in Errors and does
// not stop the rest. Cancellation stops the loop with Status "cancelled" and
// Processed counting only the rows reached.
func (im *Importer) Import(ctx context.Context, rows []Row) Summary {
	sum := Summary{Status: "success", Errors: []string{}}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			sum.Status = "cancelled"
			sum.Errors = append(sum.Errors, fmt.Sprintf("Fila %d: importación cancelada: %v", row.Line, err))
			break
		}
		sum.Processed++

		p, err := im.plan(row)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("Fila %d: %v", row.Line, err))
			metrics.ImportRowsTotal.WithLabelValues("failed").Inc()
			continue
		}

		out, err := im.apply(ctx, p)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("Fila %d: Error procesando: %v", row.Line, err))
			metrics.ImportRowsTotal.WithLabelValues("failed").Inc()
			continue
		}

		if out.customerCreated {
			sum.CustomersCreated++
		} else {
			sum.CustomersExisting++
		}
		if !out.shipmentCreated {
			sum.ShipmentsSkipped++
			metrics.ImportRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		sum.ShipmentsCreated++
		metrics.ImportRowsTotal.WithLabelValues("created").Inc()

		if im.prompts == nil || !im.prompts.Enabled() {
			continue
		}
		if _, err := im.prompts.SendPrompt(ctx, out.customer, out.shipment); err != nil {
			sum.WhatsAppErrors++
			sum.Errors = append(sum.Errors, fmt.Sprintf("Fila %d: Error enviando WhatsApp a %s: %v", row.Line, out.customer.Phone, err))
			continue
		}
		sum.WhatsAppSent++
	}

	slog.Info("import finished",
		"status", sum.Status,
		"processed", sum.Processed,
		"customers_created", sum.CustomersCreated,
		"shipments_created", sum.ShipmentsCreated,
		"shipments_skipped", sum.ShipmentsSkipped,
		"errors", len(sum.Errors),
	)
	return sum
}

func (im *Importer) plan(row Row) (planned, error) {
	number := strings.TrimSpace(row.Phone)
	if number == "" {
		return planned{}, errors.New("Teléfono vacío")
	}
	prefix := strings.TrimPrefix(strings.TrimSpace(row.Prefix), "+")
	if prefix == "" {
		prefix = im.defaultPrefix
	}

	p := planned{
		phone:       service.CanonicalPhone("+" + prefix + number),
		name:        strings.TrimSpace(row.Customer),
		hoursGiven:  row.HoursOpen != "" || row.HoursClose != "",
		description: strings.TrimSpace(row.Description),
	}
	if p.name == "" {
		p.name = defaultCustomerName
	}
	p.hoursOpen = hoursOrDefault(row.Line, "Apertura para entregas", row.HoursOpen, model.DefaultHoursOpen)
	p.hoursClose = hoursOrDefault(row.Line, "Cierre para entregas", row.HoursClose, model.DefaultHoursClose)

	y, m, d, err := parseDate(row.Date)
	if err != nil {
		return planned{}, fmt.Errorf("Error parseando fecha/hora: %w", err)
	}
	clock, err := parseClock(row.Time)
	if err != nil {
		return planned{}, fmt.Errorf("Error parseando fecha/hora: %w", err)
	}
	p.at = time.Date(y, m, d, clock.Hour, clock.Minute, clock.Second, 0, im.loc)
	return p, nil
}

func hoursOrDefault(line int, column, raw string, def model.TimeOfDay) model.TimeOfDay {
	if raw == "" {
		return def
	}
	tod, err := parseClock(raw)
	if err != nil {
		slog.Warn("unparsable delivery hours, using default",
			"row", line, "column", column, "value", raw, "default", def.String())
		return def
	}
	return tod
}

// apply writes one row in its own transaction: find or create the customer,
// then create the shipment unless an identical one already exists.
func (im *Importer) apply(ctx context.Context, p planned) (rowOutcome, error) {
	now := im.now()
	var out rowOutcome

	err := im.store.InTx(ctx, func(tx repo.Tx) error {
		out = rowOutcome{}

		cust, err := tx.FindCustomerByPhone(ctx, p.phone)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			cust = model.Customer{
				ID:                 uuid.New(),
				Name:               p.name,
				Phone:              p.phone,
				DeliveryHoursOpen:  p.hoursOpen,
				DeliveryHoursClose: p.hoursClose,
				Timezone:           im.loc.String(),
				Active:             true,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := tx.CreateCustomer(ctx, cust); err != nil {
				return err
			}
			out.customerCreated = true
		case err != nil:
			return err
		case p.hoursGiven:
			cust.DeliveryHoursOpen = p.hoursOpen
			cust.DeliveryHoursClose = p.hoursClose
			cust.UpdatedAt = now
			if err := tx.UpdateCustomer(ctx, cust); err != nil {
				return err
			}
		}
		out.customer = cust

		existing, err := tx.FindShipment(ctx, cust.ID, p.description, p.at)
		if err == nil {
			out.shipment = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		sh := model.NewShipment(cust.ID, p.description, p.at, im.loc, now)
		if err := tx.CreateShipment(ctx, sh); err != nil {
			return err
		}
		out.shipment = sh
		out.shipmentCreated = true
		return nil
	})
	return out, err
}
