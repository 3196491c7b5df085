package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"atelier/internal/db"
)

// Source supplies the tables to export.
type Source interface {
	ExportTables(ctx context.Context) ([]db.TableSnapshot, error)
	// ExportMonth limits dated tables to the calendar month of month.
	ExportMonth(ctx context.Context, month time.Time) ([]db.TableSnapshot, error)
}

// Workbook receives one sheet per table and serializes the result.
type Workbook interface {
	// StartSheet opens a sheet and writes its header row.
	StartSheet(name string, columns []string) error
	Append(values []interface{}) error
	WriteTo(w io.Writer) (int64, error)
	Close() error
}

// Notifier delivers a finished report.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// ReportFilename names the workbook for month, e.g. "atelier_2026-03.xlsx".
func ReportFilename(month time.Time) string {
	return fmt.Sprintf("atelier_%s.xlsx", month.Format("2006-01"))
}
