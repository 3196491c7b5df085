package model

import "time"

// WeeklySchedule is the recurring opening hours for one weekday.
type WeeklySchedule struct {
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"` // 0=Sunday .. 6=Saturday
	StartTime   string    `db:"start_time" json:"start_time"`   // HH:MM
	EndTime     string    `db:"end_time" json:"end_time"`       // HH:MM
	IsAvailable bool      `db:"is_available" json:"is_available"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BlockedDate excludes a whole calendar day from booking.
type BlockedDate struct {
	Date      string    `db:"date" json:"date"` // YYYY-MM-DD
	Reason    string    `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ValidWeekday reports whether d is within 0..6.
func ValidWeekday(d int) bool {
	return d >= 0 && d <= 6
}
