// Package exporter writes the final Excel workbook: one sheet per
// statistic and duration, plus the Peq0 sheets when the post-pass ran.
package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"radarcli/internal/results"
)

// Sheet is one workbook sheet: a name and the dense table behind it.
type Sheet struct {
	Name  string
	Table results.Table
}

// BuildSheets finalizes every populated matrix key into a sheet, in the
// matrix's canonical key order.
func BuildSheets(m *results.Matrix, zones []string) []Sheet {
	var sheets []Sheet
	for _, k := range m.Keys() {
		sheets = append(sheets, Sheet{Name: k.SheetName(), Table: m.Table(k, zones)})
	}
	return sheets
}

// WriteWorkbook writes the sheets to an .xlsx file at path, creating the
// parent directory when needed. The layout of every sheet is a Date
// column followed by one column per zone; cells without a value stay
// empty rather than zero.
func WriteWorkbook(path string, sheets []Sheet, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), sheet.Name)
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet); err != nil {
			return fmt.Errorf("failed to fill sheet %s: %w", sheet.Name, err)
		}
		logger.Info("sheet written",
			slog.String("sheet", sheet.Name),
			slog.Int("rows", len(sheet.Table.Dates)),
			slog.Int("zones", len(sheet.Table.Zones)))
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	logger.Info("workbook saved",
		slog.String("path", path),
		slog.Int("sheets", len(sheets)))
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	header := append([]interface{}{"Date"}, toAny(sheet.Table.Zones)...)
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return err
	}
	for rowIdx, date := range sheet.Table.Dates {
		row := make([]interface{}, 1+len(sheet.Table.Zones))
		row[0] = date
		for colIdx, z := range sheet.Table.Zones {
			if v, ok := sheet.Table.Get(date, z); ok {
				row[colIdx+1] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
