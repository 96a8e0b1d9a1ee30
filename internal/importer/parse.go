package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/reply"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Row is one data line of the delivery sheet, as text.
type Row struct {
	Line        int    `json:"line"`
	Customer    string `json:"cliente"`
	Prefix      string `json:"prefijo"`
	Phone       string `json:"telefono"`
	HoursOpen   string `json:"apertura"`
	HoursClose  string `json:"cierre"`
	Date        string `json:"fecha_entrega"`
	Time        string `json:"hora_entrega"`
	Description string `json:"descripcion"`
}

type column int

const (
	colCustomer column = iota
	colPrefix
	colPhone
	colHoursOpen
	colHoursClose
	colDate
	colTime
	colDescription
)

// Header names after accent folding and lowercasing.
var headerNames = map[string]column{
	"cliente":                colCustomer,
	"prefijo":                colPrefix,
	"telefono":               colPhone,
	"apertura para entregas": colHoursOpen,
	"cierre para entregas":   colHoursClose,
	"fecha entrega":          colDate,
	"hora entrega":           colTime,
	"descripcion":            colDescription,
}

var requiredColumns = []struct {
	col  column
	name string
}{
	{colPhone, "Teléfono"},
	{colDate, "Fecha entrega"},
	{colTime, "Hora entrega"},
	{colDescription, "Descripción"},
}

func headerKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(reply.Fold(s)), " "))
}

// ReadFile parses a workbook or CSV file from disk.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f)
}

// Parse picks the format from the file name extension.
func Parse(name string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

func parseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rowsFromRecords(records)
}

func parseCSV(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		cr.Comma = ';'
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]Row, error) {
	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.New("file has no header row")
	}

	index := map[column]int{}
	for i, h := range records[start] {
		if col, ok := headerNames[headerKey(h)]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	var missing []string
	for _, rc := range requiredColumns {
		if _, ok := index[rc.col]; !ok {
			missing = append(missing, rc.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	cell := func(rec []string, col column) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]Row, 0, len(records)-start-1)
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, Row{
			Line:        len(rows) + 1,
			Customer:    cell(rec, colCustomer),
			Prefix:      cell(rec, colPrefix),
			Phone:       cell(rec, colPhone),
			HoursOpen:   cell(rec, colHoursOpen),
			HoursClose:  cell(rec, colHoursClose),
			Date:        cell(rec, colDate),
			Time:        cell(rec, colTime),
			Description: cell(rec, colDescription),
		})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseDate accepts DD/MM/YYYY or a spreadsheet date serial.
func parseDate(raw string) (year int, month time.Month, day int, err error) {
	if t, perr := time.Parse(model.DateLayout, raw); perr == nil {
		return t.Year(), t.Month(), t.Day(), nil
	}
	if serial, ferr := strconv.ParseFloat(raw, 64); ferr == nil && serial >= 1 {
		t, cerr := excelize.ExcelDateToTime(serial, false)
		if cerr == nil {
			return t.Year(), t.Month(), t.Day(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("fecha %q no tiene el formato DD/MM/YYYY", raw)
}

// parseClock accepts HH:MM, HH:MM:SS or a spreadsheet time fraction.
func parseClock(raw string) (model.TimeOfDay, error) {
	if tod, err := model.ParseTimeOfDay(raw); err == nil {
		return tod, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 {
		_, frac := math.Modf(f)
		secs := int(math.Round(frac * 86400))
		if secs >= 86400 {
			secs = 86399
		}
		return model.TimeOfDay{Hour: secs / 3600, Minute: secs % 3600 / 60, Second: secs % 60}, nil
	}
	return model.TimeOfDay{}, fmt.Errorf("hora %q no tiene el formato HH:MM", raw)
}
