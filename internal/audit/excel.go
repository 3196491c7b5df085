package audit

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	maxColWidth  = 60.0
)

// excelWorkbook builds an xlsx file with excelize.
type excelWorkbook struct {
	file   *excelize.File
	sheet  string
	row    int
	widths []float64
	bold   int
}

// NewExcelWorkbook returns an empty xlsx workbook.
func NewExcelWorkbook() Workbook {
	return &excelWorkbook{file: excelize.NewFile()}
}

func (w *excelWorkbook) StartSheet(name string, columns []string) error {
	if err := w.flushWidths(); err != nil {
		return err
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 0
	w.widths = make([]float64, len(columns))

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := w.Append(header); err != nil {
		return err
	}

	if w.bold == 0 {
		style, err := w.file.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E7E6E6"}},
		})
		if err != nil {
			return err
		}
		w.bold = style
	}
	last, err := excelize.CoordinatesToCellName(max(len(columns), 1), 1)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStyle(w.sheet, "A1", last, w.bold); err != nil {
		return err
	}
	return w.file.SetPanes(w.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (w *excelWorkbook) Append(values []interface{}) error {
	if w.sheet == "" {
		return fmt.Errorf("append before StartSheet")
	}
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	for i, v := range values {
		if i < len(w.widths) {
			w.widths[i] = max(w.widths[i], float64(utf8.RuneCountInString(fmt.Sprint(v)))+2)
		}
	}
	return w.file.SetSheetRow(w.sheet, cell, &values)
}

// flushWidths sizes the current sheet's columns to their longest value.
func (w *excelWorkbook) flushWidths() error {
	for i, width := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(w.sheet, col, col, min(width, maxColWidth)); err != nil {
			return err
		}
	}
	w.widths = nil
	return nil
}

func (w *excelWorkbook) WriteTo(out io.Writer) (int64, error) {
	if err := w.flushWidths(); err != nil {
		return 0, err
	}
	return w.file.WriteTo(out)
}

func (w *excelWorkbook) Close() error {
	return w.file.Close()
}
