package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"atelier/internal/db"

	"github.com/rs/zerolog"
)

var ErrNoNotifier = errors.New("audit: no notifier configured")

// Service exports the store as a workbook on demand and mails the previous
// month's workbook to the notifier on the first of each month.
type Service struct {
	source      Source
	newWorkbook func() Workbook
	notifier    Notifier
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService creates an audit service. newWorkbook defaults to NewExcelWorkbook;
// notifier may be nil, which leaves Run idle.
func NewService(source Source, newWorkbook func() Workbook, notifier Notifier, logger zerolog.Logger) *Service {
	if newWorkbook == nil {
		newWorkbook = NewExcelWorkbook
	}
	return &Service{
		source:      source,
		newWorkbook: newWorkbook,
		notifier:    notifier,
		logger:      logger.With().Str("component", "audit").Logger(),
		now:         time.Now,
	}
}

// Export writes one sheet per table to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	tables, err := s.source.ExportTables(ctx)
	if err != nil {
		return fmt.Errorf("read tables: %w", err)
	}
	return s.write(tables, w)
}

func (s *Service) write(tables []db.TableSnapshot, w io.Writer) error {
	book := s.newWorkbook()
	defer book.Close()

	for _, t := range tables {
		if err := book.StartSheet(t.Name, t.Columns); err != nil {
			return fmt.Errorf("sheet %s: %w", t.Name, err)
		}
		for _, row := range t.Rows {
			if err := book.Append(row); err != nil {
				return fmt.Errorf("sheet %s: %w", t.Name, err)
			}
		}
		s.logger.Debug().Str("table", t.Name).Int("rows", len(t.Rows)).Msg("table exported")
	}

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Run sends a report for the previous month at 00:01 on each first of the
// month until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	for {
		next := nextReport(s.now())
		s.logger.Info().Time("at", next).Msg("next monthly report scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		month := s.now().AddDate(0, 0, -1)
		if err := s.SendReport(ctx, month); err != nil {
			s.logger.Error().Err(err).Str("month", month.Format("2006-01")).Msg("monthly report failed")
		}
	}
}

// SendReport hands the notifier a workbook with the bookings and blocked
// dates of month, along with the current services and weekly schedule.
func (s *Service) SendReport(ctx context.Context, month time.Time) error {
	if s.notifier == nil {
		return ErrNoNotifier
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	tables, err := s.source.ExportMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("read tables for %s: %w", month.Format("2006-01"), err)
	}
	var buf bytes.Buffer
	if err := s.write(tables, &buf); err != nil {
		return err
	}

	filename := ReportFilename(month)
	caption := "Monthly report " + month.Format("January 2006")
	if err := s.notifier.SendDocument(ctx, filename, &buf, caption); err != nil {
		return fmt.Errorf("send %s: %w", filename, err)
	}
	s.logger.Info().Str("filename", filename).Msg("monthly report sent")
	return nil
}

func nextReport(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}
