package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

const slotTimeLayout = "Mon 2006-01-02 15:04"

type candidate struct {
	lessonID string
	start    time.Time
	end      time.Time
}

// slotPlanner runs the availability and conflict checks shared by booking, rescheduling and slot probes.
type slotPlanner struct {
	lessons lessonStore
	loc     *time.Location
}

// validate checks every candidate against the rules and the teacher's scheduled lessons.
// Lessons being moved by the same operation are not treated as existing conflicts,
// but the candidates are checked against each other.
func (p *slotPlanner) validate(ctx context.Context, tx *sqlx.Tx, teacherID string, rules []models.AvailabilityRule, candidates []candidate) error {
	moving := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.lessonID != "" {
			moving[c.lessonID] = struct{}{}
		}
	}

	for i, c := range candidates {
		if v := p.violation(rules, c.start, c.end); v != nil {
			return outsideAvailabilityError(v)
		}

		conflicts, err := p.conflicts(ctx, tx, teacherID, c.start, c.end, moving)
		if err != nil {
			return err
		}
		for _, other := range candidates[:i] {
			if other.start.Before(c.end) && c.start.Before(other.end) {
				conflicts = append(conflicts, models.LessonConflict{LessonID: other.lessonID, TeacherID: teacherID, Start: other.start, End: other.end})
			}
		}
		if len(conflicts) > 0 {
			return slotConflictError(&models.SlotConflictError{
				Message:   fmt.Sprintf("teacher already has a lesson overlapping %s", c.start.In(p.loc).Format(slotTimeLayout)),
				Start:     c.start,
				End:       c.end,
				Conflicts: conflicts,
			})
		}
	}
	return nil
}

func (p *slotPlanner) violation(rules []models.AvailabilityRule, start, end time.Time) *models.AvailabilityViolation {
	day, from, to, ok := localSpan(start, end, p.loc)
	if ok && covers(mergedWindows(rules, day), from, to) {
		return nil
	}
	return &models.AvailabilityViolation{
		Message:   fmt.Sprintf("%s-%s is outside teacher availability", start.In(p.loc).Format(slotTimeLayout), end.In(p.loc).Format("15:04")),
		DayOfWeek: day,
		Start:     start,
		End:       end,
	}
}

func (p *slotPlanner) conflicts(ctx context.Context, tx *sqlx.Tx, teacherID string, start, end time.Time, skip map[string]struct{}) ([]models.LessonConflict, error) {
	existing, err := p.lessons.ListOverlapping(ctx, tx, teacherID, start, end)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check lesson conflicts")
	}
	var conflicts []models.LessonConflict
	for _, lesson := range existing {
		if _, ok := skip[lesson.ID]; ok {
			continue
		}
		if lesson.Status != models.LessonStatusScheduled || !lesson.Overlaps(start, end) {
			continue
		}
		conflicts = append(conflicts, models.LessonConflict{
			LessonID:  lesson.ID,
			TeacherID: lesson.TeacherID,
			StudentID: lesson.StudentID,
			Start:     lesson.StartTime,
			End:       lesson.EndTime,
		})
	}
	return conflicts, nil
}
