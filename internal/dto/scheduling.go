package dto

import "time"

// BookLessonRequest books one lesson, or a weekly series when Occurrences > 1.
type BookLessonRequest struct {
	TeacherID       string    `json:"teacher_id" validate:"required"`
	StudentID       string    `json:"student_id" validate:"required"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=1"`
	IsRegular       bool      `json:"is_regular"`
	Occurrences     int       `json:"occurrences" validate:"omitempty,min=1"`
	SeriesID        *string   `json:"series_id" validate:"omitempty,min=1"`
}

// RescheduleLessonRequest moves a lesson or its whole series.
type RescheduleLessonRequest struct {
	NewStartTime     time.Time `json:"new_start_time" validate:"required"`
	RescheduleSeries bool      `json:"reschedule_series"`
}

// CancelLessonRequest cancels a lesson or the rest of its series.
type CancelLessonRequest struct {
	CancelSeries bool `json:"cancel_series"`
}

// AvailabilityRuleInput is one weekly window; day 0 is Monday.
type AvailabilityRuleInput struct {
	Day         *int   `json:"day" validate:"required,min=0,max=6"`
	Start       string `json:"start" validate:"required,len=5"`
	End         string `json:"end" validate:"required,len=5"`
	IsRecurring *bool  `json:"is_recurring"`
}

// ReplaceAvailabilityRequest replaces every rule of a teacher.
type ReplaceAvailabilityRequest struct {
	Availability []AvailabilityRuleInput `json:"availability" validate:"max=100,dive"`
}

// CalendarQuery carries the identity-derived filter and optional range for calendar reads.
type CalendarQuery struct {
	Role             string `form:"role"`
	UserID           string `form:"user_id"`
	TeacherID        string `form:"teacher_id"`
	StudentID        string `form:"student_id"`
	StartDate        string `form:"start_date"`
	EndDate          string `form:"end_date"`
	IncludeCancelled bool   `form:"include_cancelled"`
	Limit            int    `form:"limit"`
	Format           string `form:"format"`
}
