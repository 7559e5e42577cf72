// Package export renders inventory and history tables as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vbonduro/partsledger/internal/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query value to a Format; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", domain.NewValidationError("format", fmt.Sprintf("unsupported export format %q", s))
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func (f Format) Ext() string {
	return "." + string(f)
}

// Table is a sheet of typed cells. CSV output stringifies each cell; XLSX
// keeps numbers and times as native cell types.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

const timeLayout = "2006-01-02 15:04:05"

func ItemsTable(items []*domain.Item) *Table {
	t := &Table{
		Sheet:  "Inventory",
		Header: []string{"ID", "Name", "Part Number", "Category", "Footprint", "Type", "Quantity", "Location", "Datasheet", "Notes"},
	}
	for _, it := range items {
		t.Rows = append(t.Rows, []any{
			it.ID, it.Name, it.PartNumber, it.Category, it.Footprint, it.ItemType,
			it.TotalQty, it.Location, it.DatasheetURL, it.Notes,
		})
	}
	return t
}

func HistoryTable(entries []*domain.TransactionEntry) *Table {
	t := &Table{
		Sheet:  "History",
		Header: []string{"Timestamp", "Type", "Item", "Quantity", "Project", "User", "Notes"},
	}
	for _, e := range entries {
		user := e.FullName
		if user == "" {
			user = e.Username
		}
		t.Rows = append(t.Rows, []any{
			e.Timestamp.UTC(), string(e.Type), e.ItemName, e.Qty, e.ProjectRef, user, e.Notes,
		})
	}
	return t
}

func Write(w io.Writer, f Format, t *Table) error {
	if f == FormatXLSX {
		return WriteXLSX(w, t)
	}
	return WriteCSV(w, t)
}

func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = cellString(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func cellString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case time.Time:
		return c.Format(timeLayout)
	default:
		return fmt.Sprint(c)
	}
}

func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", t.Sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	for i, h := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(t.Sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if len(t.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
		if err := f.SetCellStyle(t.Sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(t.Sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
			if _, ok := v.(time.Time); ok {
				if err := f.SetCellStyle(t.Sheet, cell, cell, dateStyle); err != nil {
					return fmt.Errorf("failed to style cell %s: %w", cell, err)
				}
			}
		}
	}

	if err := f.SetPanes(t.Sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
