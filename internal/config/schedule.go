package config

import (
	"fmt"
	"time"

	"atelier/internal/slots"

	"gopkg.in/yaml.v3"
)

// DayConfig is the opening hours for one weekday.
type DayConfig struct {
	Day    int    `yaml:"day"`   // 0=Sun .. 6=Sat
	Start  string `yaml:"start"` // "09:00"
	End    string `yaml:"end"`   // "17:00"
	Closed bool   `yaml:"closed"`
}

// ServiceConfig seeds one catalog entry.
type ServiceConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	PriceCents      int64  `yaml:"price_cents"`
	PaymentLink     string `yaml:"payment_link,omitempty"`
	IsActive        bool   `yaml:"is_active"`
}

// HolidayConfig represents a blocked day.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// ScheduleConfig is the root configuration for schedule.yaml.
type ScheduleConfig struct {
	Week     []DayConfig     `yaml:"week"`
	Services []ServiceConfig `yaml:"services"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// parseScheduleConfig decodes and validates the schedule seed file.
func parseScheduleConfig(data []byte) (*ScheduleConfig, error) {
	var cfg ScheduleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedule config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedule config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ScheduleConfig) Validate() error {
	days := make(map[int]bool)
	for i, d := range c.Week {
		if d.Day < 0 || d.Day > 6 {
			return fmt.Errorf("week[%d]: invalid day %d, must be 0-6 (0=Sun)", i, d.Day)
		}
		if days[d.Day] {
			return fmt.Errorf("week[%d]: duplicate day %d", i, d.Day)
		}
		days[d.Day] = true

		if d.Closed && d.Start == "" && d.End == "" {
			continue
		}
		if err := validateHours(d.Start, d.End, fmt.Sprintf("week[%d]", i)); err != nil {
			return err
		}
	}

	ids := make(map[int64]bool)
	for i, s := range c.Services {
		if s.ID <= 0 {
			return fmt.Errorf("services[%d]: id must be positive, got %d", i, s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("services[%d]: duplicate id %d", i, s.ID)
		}
		ids[s.ID] = true
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("services[%d]: duration_minutes must be positive", i)
		}
		if s.PriceCents < 0 {
			return fmt.Errorf("services[%d]: price_cents cannot be negative", i)
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

// validateHours accepts the same "HH:MM" clocks the slot engine reads back.
func validateHours(start, end, prefix string) error {
	startMin, err := slots.ParseClock(start)
	if err != nil {
		return fmt.Errorf("%s.start: invalid format '%s', expected HH:MM", prefix, start)
	}
	endMin, err := slots.ParseClock(end)
	if err != nil {
		return fmt.Errorf("%s.end: invalid format '%s', expected HH:MM", prefix, end)
	}
	if endMin <= startMin {
		return fmt.Errorf("%s: end must be after start", prefix)
	}
	return nil
}

// String summarizes the configuration for logs.
func (c *ScheduleConfig) String() string {
	open := 0
	for _, d := range c.Week {
		if !d.Closed {
			open++
		}
	}
	return fmt.Sprintf("ScheduleConfig: %d open days, %d services, %d holidays",
		open, len(c.Services), len(c.Holidays))
}
