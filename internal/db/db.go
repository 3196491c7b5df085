package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already booked")
)

// DB wraps the SQLite connection used as the booking store.
type DB struct {
	*sqlx.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: conn, path: path, logger: logger}, nil
}

func createTables(conn *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			price_cents INTEGER NOT NULL DEFAULT 0,
			payment_link TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS weekly_schedule (
			day_of_week INTEGER PRIMARY KEY CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_dates (
			date TEXT PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			service_id INTEGER NOT NULL,
			booking_date TEXT NOT NULL,
			booking_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled')),
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			client_name TEXT NOT NULL,
			client_email TEXT NOT NULL DEFAULT '',
			client_phone TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			calendar_event_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		// One live booking per start time; cancelled rows free the slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_slot
			ON bookings(booking_date, booking_time) WHERE status != 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date_status ON bookings(booking_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_services_active ON services(is_active, sort_order)`,
	}

	for _, q := range queries {
		if _, err := conn.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// toStoredClock converts "HH:MM" to the persisted "HH:MM:SS" form.
func toStoredClock(clock string) string {
	if len(clock) == 5 {
		return clock + ":00"
	}
	return clock
}

// fromStoredClock converts a persisted "HH:MM:SS" value back to "HH:MM".
// Anything else is returned unchanged so the engine can reject it.
func fromStoredClock(stored string) string {
	if len(stored) == 8 && stored[5] == ':' {
		return stored[:5]
	}
	return stored
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
