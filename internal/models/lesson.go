package models

import "time"

// LessonStatus is the lifecycle state of a lesson; lessons are never hard-deleted.
type LessonStatus string

const (
	LessonStatusScheduled LessonStatus = "scheduled"
	LessonStatusCancelled LessonStatus = "cancelled"
)

// Lesson is a booked session between one teacher and one student.
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	TeacherID       string       `db:"teacher_id" json:"teacher_id"`
	StudentID       string       `db:"student_id" json:"student_id"`
	SeriesID        *string      `db:"series_id" json:"series_id,omitempty"`
	StartTime       time.Time    `db:"start_time" json:"start"`
	EndTime         time.Time    `db:"end_time" json:"end"`
	DurationMinutes int          `db:"duration_minutes" json:"duration"`
	IsRegular       bool         `db:"is_regular" json:"is_regular"`
	Status          LessonStatus `db:"status" json:"status"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// Rescheduled reports whether the lesson was moved at least once.
func (l Lesson) Rescheduled() bool {
	return !l.UpdatedAt.Equal(l.CreatedAt)
}

// Overlaps applies the half-open interval test against [start, end).
func (l Lesson) Overlaps(start, end time.Time) bool {
	return l.StartTime.Before(end) && start.Before(l.EndTime)
}

// LessonDetail adds display names for calendar rendering.
type LessonDetail struct {
	Lesson
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	StudentName string `db:"student_name" json:"student_name"`
}

// LessonFilter narrows lesson listings; exactly one of TeacherID/StudentID is set by the scope resolver.
type LessonFilter struct {
	TeacherID        string
	StudentID        string
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
	Limit            int
}

// LessonStats summarises a calendar for the sidebar.
type LessonStats struct {
	WeekLessons        int `db:"week_lessons" json:"week_lessons"`
	RegularLessons     int `db:"regular_lessons" json:"regular_lessons"`
	RescheduledLessons int `db:"rescheduled_lessons" json:"rescheduled_lessons"`
}

// LessonConflict names an existing lesson blocking a candidate interval.
type LessonConflict struct {
	LessonID  string    `json:"lesson_id"`
	TeacherID string    `json:"teacher_id"`
	StudentID string    `json:"student_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// SlotConflictError is returned when a candidate interval overlaps scheduled lessons.
type SlotConflictError struct {
	Message   string           `json:"message"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Conflicts []LessonConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// AvailabilityViolation is returned when a candidate interval is not covered by the teacher's rules.
type AvailabilityViolation struct {
	Message   string    `json:"message"`
	DayOfWeek int       `json:"day"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (e *AvailabilityViolation) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// BookingResult is returned by a successful booking.
type BookingResult struct {
	Lesson      LessonDetail   `json:"lesson"`
	Occurrences []LessonDetail `json:"occurrences"`
}

// RescheduleResult lists every lesson moved by one reschedule request.
type RescheduleResult struct {
	Lesson LessonDetail   `json:"lesson"`
	Moved  []LessonDetail `json:"moved"`
}

// CancellationResult lists every lesson cancelled by one request.
type CancellationResult struct {
	Cancelled []LessonDetail `json:"cancelled"`
}
