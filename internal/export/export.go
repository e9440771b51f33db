// Package export writes registers as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"

	"github.com/xuri/excelize/v2"
)

// Formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Table is a named grid of strings with a header row.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// WriteCSV writes t as CSV.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("write CSV headers: %w", err)
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write CSV rows: %w", err)
	}
	return nil
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if sheet == "" {
		sheet = "Sheet1"
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for r, row := range t.Rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	if n := len(t.Headers); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		f.SetColWidth(sheet, "A", last, 18)
	}

	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	if index, err := f.GetSheetIndex(sheet); err == nil {
		f.SetActiveSheet(index)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Serve writes t to an HTTP response as a download. format defaults to CSV.
func Serve(w http.ResponseWriter, format, filename string, t Table) error {
	switch format {
	case FormatXLSX:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", filename))
		return WriteXLSX(w, t)
	case FormatCSV, "":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		return WriteCSV(w, t)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ValidFormat reports whether format can be served.
func ValidFormat(format string) bool {
	return format == "" || format == FormatCSV || format == FormatXLSX
}
