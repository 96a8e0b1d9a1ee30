package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo/repotest"
)

var sheetHeader = []any{
	"Cliente", "Prefijo", "Teléfono", "Apertura para entregas",
	"Cierre para entregas", "Fecha entrega", "Hora entrega", "Descripción",
}

func buildWorkbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow("Sheet1", "A1", &sheetHeader); err != nil {
		t.Fatalf("SetSheetRow header: %v", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := model.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

type fakePrompts struct {
	mu      sync.Mutex
	enabled bool
	err     error
	sent    []model.Shipment
}

func (f *fakePrompts) Enabled() bool { return f.enabled }

func (f *fakePrompts) SendPrompt(ctx context.Context, cust model.Customer, s model.Shipment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, s)
	return "SM1", nil
}

func TestParse_XLSX(t *testing.T) {
	t.Parallel()

	data := buildWorkbook(t,
		[]any{"Bar Pepe", "34", "600111222", "08:00", "14:00", "01/05/2024", "10:00", "Pedido A"},
		[]any{"", "", "", "", "", "", "", ""},
		[]any{"Café Luna", "", "600333444", "", "", "02/05/2024", "09:30:00", "Pedido B"},
	)

	rows, err := Parse("entregas.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (blank skipped), got %d", len(rows))
	}
	if rows[0].Customer != "Bar Pepe" || rows[0].Phone != "600111222" || rows[0].Description != "Pedido A" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Line != 2 || rows[1].Time != "09:30:00" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestParse_CSVHeadersAreAccentAndCaseInsensitive(t *testing.T) {
	t.Parallel()

	csv := "\xef\xbb\xbfCLIENTE;Telefono;Fecha Entrega;HORA ENTREGA;descripcion\n" +
		"Bar Pepe;600111222;01/05/2024;10:00;Pedido A\n"

	rows, err := Parse("feed.CSV", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Customer != "Bar Pepe" || got.Phone != "600111222" || got.Date != "01/05/2024" || got.Time != "10:00" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Prefix != "" {
		t.Fatalf("expected empty prefix, got %q", got.Prefix)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Parse("feed.txt", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	_, err := Parse("feed.csv", strings.NewReader("Cliente,Teléfono\nA,1\n"))
	if err == nil {
		t.Fatalf("expected missing columns error, got nil")
	}
	for _, col := range []string{"Fecha entrega", "Hora entrega", "Descripción"} {
		if !strings.Contains(err.Error(), col) {
			t.Fatalf("expected error to mention %q, got: %v", col, err)
		}
	}

	if _, err := Parse("feed.csv", strings.NewReader("\n\n")); err == nil {
		t.Fatalf("expected error for empty file, got nil")
	}
}

func TestParseDateAndClock_SpreadsheetSerials(t *testing.T) {
	t.Parallel()

	y, m, d, err := parseDate("45413")
	if err != nil {
		t.Fatalf("parseDate serial: %v", err)
	}
	if y != 2024 || m != time.May || d != 1 {
		t.Fatalf("expected 2024-05-01, got %d-%d-%d", y, m, d)
	}

	if _, _, _, err := parseDate("2024-05-01"); err == nil {
		t.Fatalf("expected error for ISO date, got nil")
	}

	tod, err := parseClock("0.4375")
	if err != nil {
		t.Fatalf("parseClock fraction: %v", err)
	}
	if tod.Hour != 10 || tod.Minute != 30 {
		t.Fatalf("expected 10:30, got %s", tod)
	}

	if _, err := parseClock("mediodía"); err == nil {
		t.Fatalf("expected error for text time, got nil")
	}
}

func TestImport_CreatesCustomersShipmentsAndPrompts(t *testing.T) {
	t.Parallel()

	loc := madrid(t)
	store := repotest.New()
	prompts := &fakePrompts{enabled: true}
	im := New(store, prompts, loc, "34")

	rows := []Row{
		{Line: 1, Customer: "Bar Pepe", Prefix: "34", Phone: "600111222", HoursOpen: "08:00", HoursClose: "14:00", Date: "01/05/2024", Time: "10:00", Description: "Pedido A"},
		{Line: 2, Customer: "Bar Pepe", Phone: "600 111 222", Date: "02/05/2024", Time: "11:00", Description: "Pedido B"},
		{Line: 3, Customer: "Sin teléfono", Date: "02/05/2024", Time: "11:00", Description: "Pedido C"},
		{Line: 4, Customer: "Fecha mala", Phone: "600999888", Date: "2024/05/02", Time: "11:00", Description: "Pedido D"},
		{Line: 5, Customer: "", Prefix: "+33", Phone: "612345678", HoursOpen: "abc", Date: "03/05/2024", Time: "09:00", Description: "Pedido E"},
	}

	sum := im.Import(context.Background(), rows)

	if sum.Status != "success" || sum.Processed != 5 {
		t.Fatalf("unexpected summary header: %+v", sum)
	}
	if sum.CustomersCreated != 2 || sum.CustomersExisting != 1 {
		t.Fatalf("expected 2 created / 1 existing customers, got %+v", sum)
	}
	if sum.ShipmentsCreated != 3 || sum.ShipmentsSkipped != 0 {
		t.Fatalf("expected 3 shipments created, got %+v", sum)
	}
	if sum.WhatsAppSent != 3 || sum.WhatsAppErrors != 0 {
		t.Fatalf("expected 3 prompts sent, got %+v", sum)
	}
	if len(sum.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %v", sum.Errors)
	}
	if !strings.HasPrefix(sum.Errors[0], "Fila 3: ") || !strings.Contains(sum.Errors[0], "Teléfono vacío") {
		t.Fatalf("unexpected first error: %q", sum.Errors[0])
	}
	if !strings.HasPrefix(sum.Errors[1], "Fila 4: ") || !strings.Contains(sum.Errors[1], "fecha") {
		t.Fatalf("unexpected second error: %q", sum.Errors[1])
	}

	ctx := context.Background()
	pepe, err := store.FindCustomerByPhone(ctx, "+34600111222")
	if err != nil {
		t.Fatalf("expected customer +34600111222: %v", err)
	}
	if pepe.DeliveryHoursOpen != (model.TimeOfDay{Hour: 8}) || pepe.DeliveryHoursClose != (model.TimeOfDay{Hour: 14}) {
		t.Fatalf("expected sheet delivery hours kept, got %s-%s", pepe.DeliveryHoursOpen, pepe.DeliveryHoursClose)
	}

	anon, err := store.FindCustomerByPhone(ctx, "+33612345678")
	if err != nil {
		t.Fatalf("expected customer +33612345678: %v", err)
	}
	if anon.Name != defaultCustomerName {
		t.Fatalf("expected default name, got %q", anon.Name)
	}
	if anon.DeliveryHoursOpen != model.DefaultHoursOpen {
		t.Fatalf("expected default open hour for unparsable value, got %s", anon.DeliveryHoursOpen)
	}

	first := prompts.sent[0]
	if first.PlannedDeliveryTime.Location().String() != "Europe/Madrid" || first.PlannedDeliveryTime.Hour() != 10 {
		t.Fatalf("expected planned 10:00 Madrid, got %v", first.PlannedDeliveryTime)
	}
}

func TestImport_SkipsDuplicateShipments(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	im := New(store, nil, madrid(t), "34")
	rows := []Row{
		{Line: 1, Customer: "Bar Pepe", Phone: "600111222", Date: "01/05/2024", Time: "10:00", Description: "Pedido A"},
	}

	if sum := im.Import(context.Background(), rows); sum.ShipmentsCreated != 1 {
		t.Fatalf("first import: expected 1 created, got %+v", sum)
	}

	sum := im.Import(context.Background(), rows)
	if sum.ShipmentsCreated != 0 || sum.ShipmentsSkipped != 1 || sum.CustomersExisting != 1 {
		t.Fatalf("second import: expected skip, got %+v", sum)
	}
	if sum.WhatsAppSent != 0 {
		t.Fatalf("expected no prompts without sender, got %d", sum.WhatsAppSent)
	}
}

func TestImport_PromptFailureIsCounted(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	prompts := &fakePrompts{enabled: true, err: errors.New("provider down")}
	im := New(store, prompts, madrid(t), "34")

	sum := im.Import(context.Background(), []Row{
		{Line: 1, Customer: "Bar Pepe", Phone: "600111222", Date: "01/05/2024", Time: "10:00", Description: "Pedido A"},
	})
	if sum.ShipmentsCreated != 1 || sum.WhatsAppErrors != 1 || sum.WhatsAppSent != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Errors) != 1 || !strings.Contains(sum.Errors[0], "Error enviando WhatsApp a +34600111222") {
		t.Fatalf("unexpected errors: %v", sum.Errors)
	}
}

func TestImport_WriteFailureRollsBackRow(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	store.Fail["CreateShipment"] = errors.New("insert failed")
	im := New(store, nil, madrid(t), "34")

	sum := im.Import(context.Background(), []Row{
		{Line: 1, Customer: "Bar Pepe", Phone: "600111222", Date: "01/05/2024", Time: "10:00", Description: "Pedido A"},
	})
	if len(sum.Errors) != 1 || !strings.Contains(sum.Errors[0], "insert failed") {
		t.Fatalf("unexpected errors: %v", sum.Errors)
	}
	if sum.CustomersCreated != 0 {
		t.Fatalf("expected no customers counted, got %d", sum.CustomersCreated)
	}
	if _, err := store.FindCustomerByPhone(context.Background(), "+34600111222"); err == nil {
		t.Fatalf("expected customer creation to be rolled back")
	}
}

func TestPollFile_ImportsOnlyChangedFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entregas.xlsx")
	data := buildWorkbook(t,
		[]any{"Bar Pepe", "34", "600111222", "", "", "01/05/2024", "10:00", "Pedido A"},
	)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := repotest.New()
	im := New(store, nil, madrid(t), "34")

	sum, ran, err := im.PollFile(context.Background(), path)
	if err != nil {
		t.Fatalf("PollFile() error: %v", err)
	}
	if !ran || sum.ShipmentsCreated != 1 {
		t.Fatalf("expected first poll to import, ran=%v summary=%+v", ran, sum)
	}

	if _, ran, err = im.PollFile(context.Background(), path); err != nil || ran {
		t.Fatalf("expected unchanged file to be skipped, ran=%v err=%v", ran, err)
	}

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	sum, ran, err = im.PollFile(context.Background(), path)
	if err != nil || !ran {
		t.Fatalf("expected touched file to be imported, ran=%v err=%v", ran, err)
	}
	if sum.ShipmentsSkipped != 1 {
		t.Fatalf("expected duplicate skipped on re-import, got %+v", sum)
	}

	if _, _, err := im.PollFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Fatalf("expected error for missing file, got nil")
	}
}

func TestPollFile_CancelledImportIsRetried(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entregas.xlsx")
	data := buildWorkbook(t,
		[]any{"Bar Pepe", "34", "600111222", "", "", "01/05/2024", "10:00", "Pedido A"},
	)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := repotest.New()
	im := New(store, nil, madrid(t), "34")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, ran, err := im.PollFile(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Fatalf("expected cancelled poll to report no completed run")
	}
	if sum.Status != "cancelled" || sum.Processed != 0 || sum.ShipmentsCreated != 0 {
		t.Fatalf("unexpected cancelled summary: %+v", sum)
	}

	sum, ran, err = im.PollFile(context.Background(), path)
	if err != nil {
		t.Fatalf("PollFile() error: %v", err)
	}
	if !ran || sum.ShipmentsCreated != 1 || sum.Processed != 1 {
		t.Fatalf("expected unchanged file to be imported after cancellation, ran=%v summary=%+v", ran, sum)
	}

	shipments, err := store.ListShipments(context.Background(), nil, 10, 0)
	if err != nil {
		t.Fatalf("ListShipments: %v", err)
	}
	if len(shipments) != 1 {
		t.Fatalf("expected 1 shipment in store, got %d", len(shipments))
	}
}

func TestImport_CancelledCountsOnlyReachedRows(t *testing.T) {
	t.Parallel()

	im := New(repotest.New(), nil, madrid(t), "34")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := im.Import(ctx, []Row{
		{Line: 1, Phone: "600111222", Date: "01/05/2024", Time: "10:00", Description: "Pedido A"},
		{Line: 2, Phone: "600111333", Date: "01/05/2024", Time: "10:00", Description: "Pedido B"},
	})
	if sum.Status != "cancelled" || sum.Processed != 0 || len(sum.Errors) != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
