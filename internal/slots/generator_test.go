package slots

import (
	"errors"
	"testing"
)

func openDay(start, end string) *Schedule {
	return &Schedule{StartTime: start, EndTime: end, IsAvailable: true}
}

func times(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}

func TestGenerate_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		in          Input
		wantCount   int
		wantFirst   string
		wantLast    string
		unavailable []string
	}{
		{
			name:      "A: open day no bookings",
			in:        Input{DurationMinutes: 60, Schedule: openDay("09:00", "17:00")},
			wantCount: 15,
			wantFirst: "09:00",
			wantLast:  "16:00",
		},
		{
			name: "B: one booking at 10:00",
			in: Input{
				DurationMinutes: 60,
				Schedule:        openDay("09:00", "17:00"),
				Bookings:        []Booking{{Time: "10:00"}},
			},
			wantCount:   15,
			wantFirst:   "09:00",
			wantLast:    "16:00",
			unavailable: []string{"10:00"},
		},
		{
			name:      "C: eight hour service",
			in:        Input{DurationMinutes: 480, Schedule: openDay("09:00", "17:00")},
			wantCount: 1,
			wantFirst: "09:00",
			wantLast:  "09:00",
		},
		{
			name:      "D: blocked date",
			in:        Input{DurationMinutes: 60, Schedule: openDay("09:00", "17:00"), Blocked: true},
			wantCount: 0,
		},
		{
			name:      "E: no schedule row",
			in:        Input{DurationMinutes: 60},
			wantCount: 0,
		},
		{
			name:      "closed day",
			in:        Input{DurationMinutes: 60, Schedule: &Schedule{StartTime: "09:00", EndTime: "17:00"}},
			wantCount: 0,
		},
		{
			name:      "off-grid start keeps its own origin",
			in:        Input{DurationMinutes: 30, Schedule: openDay("09:15", "10:45")},
			wantCount: 3,
			wantFirst: "09:15",
			wantLast:  "10:15",
		},
		{
			name:      "zero length window",
			in:        Input{DurationMinutes: 30, Schedule: openDay("09:00", "09:00")},
			wantCount: 0,
		},
		{
			name:      "inverted window",
			in:        Input{DurationMinutes: 30, Schedule: openDay("22:00", "06:00")},
			wantCount: 0,
		},
		{
			name:      "duration longer than window",
			in:        Input{DurationMinutes: 600, Schedule: openDay("09:00", "17:00")},
			wantCount: 0,
		},
		{
			name:      "short service shares the grid",
			in:        Input{DurationMinutes: 15, Schedule: openDay("09:00", "10:00")},
			wantCount: 2,
			wantFirst: "09:00",
			wantLast:  "09:30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatalf("expected non-nil slice")
			}
			if len(got) != tt.wantCount {
				t.Fatalf("expected %d slots, got %d: %v", tt.wantCount, len(got), times(got))
			}
			if tt.wantCount == 0 {
				return
			}
			if got[0].Time != tt.wantFirst {
				t.Errorf("first slot = %s, want %s", got[0].Time, tt.wantFirst)
			}
			if got[len(got)-1].Time != tt.wantLast {
				t.Errorf("last slot = %s, want %s", got[len(got)-1].Time, tt.wantLast)
			}

			unavailable := make(map[string]bool)
			for _, u := range tt.unavailable {
				unavailable[u] = true
			}
			for _, s := range got {
				if s.Available == unavailable[s.Time] {
					t.Errorf("slot %s available=%v, want %v", s.Time, s.Available, !unavailable[s.Time])
				}
			}
		})
	}
}

// Cancelled bookings are filtered by the store, so scenario F is an empty booking list.
func TestGenerate_CancelledBookingLeavesSlotOpen(t *testing.T) {
	got, err := Generate(Input{DurationMinutes: 60, Schedule: openDay("09:00", "17:00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slot, ok := Find(got, "11:00")
	if !ok || !slot.Available {
		t.Fatalf("expected 11:00 to be available, got %+v (found=%v)", slot, ok)
	}
}

func TestGenerate_Properties(t *testing.T) {
	schedules := []*Schedule{
		openDay("08:00", "20:00"),
		openDay("09:15", "17:40"),
		openDay("00:00", "23:59"),
		openDay("12:00", "12:45"),
	}
	durations := []int{15, 30, 45, 60, 90, 240}
	bookings := []Booking{{Time: "09:15"}, {Time: "12:00"}, {Time: "13:30"}}

	for _, sched := range schedules {
		for _, d := range durations {
			in := Input{DurationMinutes: d, Schedule: sched, Bookings: bookings}
			got, err := Generate(in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			start, _ := ParseClock(sched.StartTime)
			end, _ := ParseClock(sched.EndTime)
			for i, s := range got {
				m, err := ParseClock(s.Time)
				if err != nil {
					t.Fatalf("slot %q is not HH:MM: %v", s.Time, err)
				}
				// duration fit
				if m+d > end {
					t.Errorf("slot %s with duration %d runs past %s", s.Time, d, sched.EndTime)
				}
				// grid alignment
				if (m-start)%Stride != 0 || m < start {
					t.Errorf("slot %s is off the grid starting at %s", s.Time, sched.StartTime)
				}
				if i > 0 {
					prev, _ := ParseClock(got[i-1].Time)
					if m-prev != Stride {
						t.Errorf("slots %s and %s are not %d minutes apart", got[i-1].Time, s.Time, Stride)
					}
				}
				// occupancy exclusion
				booked := false
				for _, b := range bookings {
					if b.Time == s.Time {
						booked = true
					}
				}
				if s.Available == booked {
					t.Errorf("slot %s available=%v but booked=%v", s.Time, s.Available, booked)
				}
			}

			// idempotence
			again, _ := Generate(in)
			if len(again) != len(got) {
				t.Fatalf("second call returned %d slots, first %d", len(again), len(got))
			}
			for i := range got {
				if again[i] != got[i] {
					t.Errorf("second call differs at %d: %+v vs %+v", i, again[i], got[i])
				}
			}
		}
	}
}

func TestGenerate_BlockedWinsOverEverything(t *testing.T) {
	got, err := Generate(Input{
		DurationMinutes: 60,
		Schedule:        openDay("09:00", "17:00"),
		Blocked:         true,
		Bookings:        []Booking{{Time: "not-a-time"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestGenerate_ExactModeIgnoresLongBookings(t *testing.T) {
	got, err := Generate(Input{
		DurationMinutes: 30,
		Schedule:        openDay("09:00", "11:00"),
		Bookings:        []Booking{{Time: "09:00", DurationMinutes: 120}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]bool{"09:00": false, "09:30": true, "10:00": true, "10:30": true}
	for _, s := range got {
		if want[s.Time] != s.Available {
			t.Errorf("slot %s available=%v, want %v", s.Time, s.Available, want[s.Time])
		}
	}
}

func TestGenerate_IntervalMode(t *testing.T) {
	got, err := Generate(Input{
		DurationMinutes: 60,
		Schedule:        openDay("09:00", "13:00"),
		Bookings: []Booking{
			{Time: "10:00", DurationMinutes: 90}, // 10:00-11:30
		},
		Mode: OccupancyInterval,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{
		"09:00": true,  // 09:00-10:00 touches but does not overlap
		"09:30": false, // 09:30-10:30
		"10:00": false,
		"10:30": false,
		"11:00": false, // 11:00-12:00 overlaps 11:00-11:30
		"11:30": true,
		"12:00": true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), times(got))
	}
	for _, s := range got {
		if want[s.Time] != s.Available {
			t.Errorf("slot %s available=%v, want %v", s.Time, s.Available, want[s.Time])
		}
	}
}

func TestGenerate_IntervalModeDefaultsBookingDuration(t *testing.T) {
	got, err := Generate(Input{
		DurationMinutes: 60,
		Schedule:        openDay("09:00", "11:00"),
		Bookings:        []Booking{{Time: "09:30"}},
		Mode:            OccupancyInterval,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range got {
		if s.Available {
			t.Errorf("slot %s should overlap the 09:30-10:30 booking", s.Time)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{
			name: "malformed start",
			in:   Input{DurationMinutes: 60, Schedule: openDay("9:00", "17:00")},
			want: ErrInvalidTime,
		},
		{
			name: "malformed end",
			in:   Input{DurationMinutes: 60, Schedule: openDay("09:00", "25:00")},
			want: ErrInvalidTime,
		},
		{
			name: "malformed booking",
			in:   Input{DurationMinutes: 60, Schedule: openDay("09:00", "17:00"), Bookings: []Booking{{Time: "10am"}}},
			want: ErrInvalidTime,
		},
		{
			name: "zero duration",
			in:   Input{DurationMinutes: 0, Schedule: openDay("09:00", "17:00")},
			want: ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerate_UnknownMode(t *testing.T) {
	_, err := Generate(Input{DurationMinutes: 60, Schedule: openDay("09:00", "17:00"), Mode: "fuzzy"})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestParseClock(t *testing.T) {
	valid := map[string]int{"00:00": 0, "09:15": 555, "23:59": 1439}
	for in, want := range valid {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Errorf("ParseClock(%q) = %d, %v; want %d", in, got, err, want)
		}
	}

	for _, in := range []string{"", "9:00", "09:00:00", "24:00", "12:60", "ab:cd", "12-30"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ParseClock(%q) expected ErrInvalidTime, got %v", in, err)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(555); got != "09:15" {
		t.Errorf("FormatClock(555) = %s", got)
	}
	if got := FormatClock(0); got != "00:00" {
		t.Errorf("FormatClock(0) = %s", got)
	}
}

func TestAvailable(t *testing.T) {
	in := []Slot{{Time: "09:00", Available: true}, {Time: "09:30"}, {Time: "10:00", Available: true}}
	got := Available(in)
	if len(got) != 2 || got[0].Time != "09:00" || got[1].Time != "10:00" {
		t.Errorf("unexpected available slots: %v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{30: "30 min", 60: "1 h", 90: "1 h 30 min", 480: "8 h"}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}
