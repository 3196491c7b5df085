package db

import (
	"context"
	"fmt"
	"time"
)

// TableSnapshot is the content of one table. Each row holds values in Columns order.
type TableSnapshot struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// exportOrder lists exported tables with the ordering used for each.
// dateColumn limits the table to a period in ExportMonth.
var exportOrder = []struct {
	table      string
	orderBy    string
	dateColumn string
}{
	{"services", "sort_order, id", ""},
	{"weekly_schedule", "day_of_week", ""},
	{"blocked_dates", "date", "date"},
	{"bookings", "booking_date, booking_time, id", "booking_date"},
}

// ExportTables reads every exported table inside one read transaction, so the
// snapshots are consistent with each other.
func (db *DB) ExportTables(ctx context.Context) ([]TableSnapshot, error) {
	return db.exportTables(ctx, "", "")
}

// ExportMonth is ExportTables with blocked dates and bookings limited to the
// calendar month containing month. Services and the weekly schedule are exported whole.
func (db *DB) ExportMonth(ctx context.Context, month time.Time) ([]TableSnapshot, error) {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return db.exportTables(ctx, dateKey(first), dateKey(first.AddDate(0, 1, 0)))
}

// exportTables limits dated tables to [from, to) when from is set.
func (db *DB) exportTables(ctx context.Context, from, to string) ([]TableSnapshot, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()

	snapshots := make([]TableSnapshot, 0, len(exportOrder))
	for _, t := range exportOrder {
		query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", t.table, t.orderBy)
		var args []interface{}
		if from != "" && t.dateColumn != "" {
			query = fmt.Sprintf("SELECT * FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s",
				t.table, t.dateColumn, t.dateColumn, t.orderBy)
			args = []interface{}{from, to}
		}

		rows, err := tx.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.table, err)
		}

		snap := TableSnapshot{Name: t.table}
		if snap.Columns, err = rows.Columns(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("export %s columns: %w", t.table, err)
		}
		for rows.Next() {
			values, err := rows.SliceScan()
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("export %s row: %w", t.table, err)
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}
			snap.Rows = append(snap.Rows, values)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.table, err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
