package slots

import (
	"errors"
	"fmt"
)

const (
	// Stride is the fixed distance between candidate start times, in minutes.
	Stride = 30

	// DefaultDurationMinutes is used when a service duration cannot be resolved.
	DefaultDurationMinutes = 60
)

var (
	ErrInvalidTime     = errors.New("invalid time of day")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// OccupancyMode selects how existing bookings remove candidate slots.
type OccupancyMode string

const (
	// OccupancyExact marks a slot taken only when a booking starts at exactly that time.
	OccupancyExact OccupancyMode = "exact"
	// OccupancyInterval marks a slot taken when its interval overlaps any booked interval.
	OccupancyInterval OccupancyMode = "interval"
)

// Valid reports whether m is a known mode. The empty mode means exact.
func (m OccupancyMode) Valid() bool {
	switch m {
	case "", OccupancyExact, OccupancyInterval:
		return true
	}
	return false
}

// Slot is a candidate start time with its availability flag.
type Slot struct {
	Time      string `json:"time"` // "HH:MM"
	Available bool   `json:"available"`
}

// Schedule holds the opening hours of the target weekday.
type Schedule struct {
	StartTime   string // "09:00"
	EndTime     string // "17:00"
	IsAvailable bool
}

// Booking is an existing non-cancelled booking on the target date.
type Booking struct {
	Time            string // "HH:MM"
	DurationMinutes int    // used by OccupancyInterval only
}

// Input carries everything the engine needs for one date.
type Input struct {
	DurationMinutes int
	Schedule        *Schedule // nil when no row exists for the weekday
	Blocked         bool
	Bookings        []Booking
	Mode            OccupancyMode
}

// Generate returns the ordered candidate slots for one date.
// A blocked date, a missing schedule row or a closed day yield no slots.
// Malformed times are reported as ErrInvalidTime and never coerced.
func Generate(in Input) ([]Slot, error) {
	result := []Slot{}

	if in.Blocked || in.Schedule == nil || !in.Schedule.IsAvailable {
		return result, nil
	}

	if in.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, in.DurationMinutes)
	}
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("unknown occupancy mode %q", in.Mode)
	}

	start, err := ParseClock(in.Schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := ParseClock(in.Schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	taken, err := occupancy(in)
	if err != nil {
		return nil, err
	}

	for t := start; t+in.DurationMinutes <= end; t += Stride {
		result = append(result, Slot{
			Time:      FormatClock(t),
			Available: !taken(t),
		})
	}

	return result, nil
}

// occupancy returns a predicate reporting whether the candidate at minute t is taken.
func occupancy(in Input) (func(t int) bool, error) {
	if in.Mode == OccupancyInterval {
		type span struct{ start, end int }
		spans := make([]span, 0, len(in.Bookings))
		for _, b := range in.Bookings {
			s, err := ParseClock(b.Time)
			if err != nil {
				return nil, fmt.Errorf("parse booking time: %w", err)
			}
			d := b.DurationMinutes
			if d <= 0 {
				d = in.DurationMinutes
			}
			spans = append(spans, span{start: s, end: s + d})
		}
		return func(t int) bool {
			for _, sp := range spans {
				if isOverlapping(t, t+in.DurationMinutes, sp.start, sp.end) {
					return true
				}
			}
			return false
		}, nil
	}

	occupied := make(map[string]struct{}, len(in.Bookings))
	for _, b := range in.Bookings {
		if _, err := ParseClock(b.Time); err != nil {
			return nil, fmt.Errorf("parse booking time: %w", err)
		}
		occupied[b.Time] = struct{}{}
	}
	return func(t int) bool {
		_, ok := occupied[FormatClock(t)]
		return ok
	}, nil
}

// Available returns only the available slots.
func Available(slots []Slot) []Slot {
	available := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// Find returns the slot starting at clock, if present.
func Find(slots []Slot, clock string) (Slot, bool) {
	for _, s := range slots {
		if s.Time == clock {
			return s, true
		}
	}
	return Slot{}, false
}

// ParseClock converts a strict "HH:MM" wall-clock string to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func isOverlapping(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}

// FormatDuration formats duration in minutes to a short human-readable string.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
