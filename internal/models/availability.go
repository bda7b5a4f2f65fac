package models

import (
	"fmt"
	"time"
)

// MinutesPerDay bounds clock times; "24:00" is accepted only as an end time.
const MinutesPerDay = 24 * 60

// AvailabilityRule is a recurring weekly window in the calendar timezone.
// DayOfWeek uses 0 = Monday .. 6 = Sunday.
type AvailabilityRule struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day"`
	StartTime   string    `db:"start_time" json:"start"`
	EndTime     string    `db:"end_time" json:"end"`
	IsRecurring bool      `db:"is_recurring" json:"is_recurring"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Window returns the rule bounds as minutes since local midnight.
func (r AvailabilityRule) Window() (int, int, error) {
	start, err := ParseClock(r.StartTime, false)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(r.EndTime, true)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("availability window %s-%s is empty", r.StartTime, r.EndTime)
	}
	return start, end, nil
}

// ParseClock parses HH:MM into minutes since midnight.
func ParseClock(raw string, allowMidnightEnd bool) (int, error) {
	if allowMidnightEnd && raw == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil || len(raw) != 5 {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Weekday maps t onto the Monday-based index used by availability rules.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// FreeWindow is a bookable gap left after subtracting lessons from availability.
type FreeWindow struct {
	Date      string    `json:"date"`
	DayOfWeek int       `json:"day"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// WeeklyAvailability is the resolver output for one teacher and one week.
type WeeklyAvailability struct {
	TeacherID   string             `json:"teacher_id"`
	WeekStart   string             `json:"week_start"`
	Timezone    string             `json:"timezone"`
	Rules       []AvailabilityRule `json:"availability"`
	Lessons     []LessonDetail     `json:"lessons"`
	FreeWindows []FreeWindow       `json:"free_windows"`
}

// SlotCheck answers whether a candidate interval could be booked right now.
type SlotCheck struct {
	TeacherID string           `json:"teacher_id"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Free      bool             `json:"free"`
	Reason    string           `json:"reason,omitempty"`
	Conflicts []LessonConflict `json:"conflicts,omitempty"`
}

const (
	SlotReasonOutsideAvailability = "outside_availability"
	SlotReasonConflict            = "slot_conflict"
)
