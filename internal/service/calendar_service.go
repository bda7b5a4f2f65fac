package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
	"github.com/noah-isme/lesson-calendar-api/pkg/export"
)

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type eventRenderer interface {
	Render(name string, events []export.Event) ([]byte, error)
}

// CalendarService serves role-scoped lesson reads and exports.
type CalendarService struct {
	lessons  lessonStore
	students studentStore
	cfg      config.CalendarConfig
	exports  config.ExportsConfig
	csv      tableRenderer
	pdf      tableRenderer
	xlsx     tableRenderer
	ics      eventRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewCalendarService constructs the service.
func NewCalendarService(lessons lessonStore, students studentStore, cfg config.CalendarConfig, exports config.ExportsConfig, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exports.Title == "" {
		exports.Title = "Lesson calendar"
	}
	return &CalendarService{
		lessons:  lessons,
		students: students,
		cfg:      normalizeCalendarConfig(cfg),
		exports:  exports,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		xlsx:     export.NewXLSXExporter(),
		ics:      export.NewICSExporter(exports.ProductID),
		logger:   logger,
		now:      time.Now,
	}
}

// ResolveScope maps a viewer onto the single teacher or student whose lessons it may read.
func (s *CalendarService) ResolveScope(ctx context.Context, viewer models.Viewer) (models.LessonScope, error) {
	switch viewer.Role {
	case models.RoleTeacher:
		id := viewer.UserID
		if id == "" {
			id = viewer.TeacherID
		}
		if id == "" {
			return models.LessonScope{}, appErrors.Invalid("teacher calendar requires user_id")
		}
		if viewer.StudentID != "" || (viewer.TeacherID != "" && viewer.TeacherID != id) {
			return models.LessonScope{}, appErrors.Clone(appErrors.ErrPermissionDenied, "teachers can only view their own calendar")
		}
		return models.LessonScope{TeacherID: id}, nil

	case models.RoleParent:
		if viewer.StudentID == "" {
			return models.LessonScope{}, appErrors.Invalid("parent calendar requires student_id")
		}
		if viewer.TeacherID != "" {
			return models.LessonScope{}, appErrors.Clone(appErrors.ErrPermissionDenied, "parents can only view their child's calendar")
		}
		if viewer.UserID != "" {
			student, err := s.students.FindByID(ctx, nil, viewer.StudentID)
			if err != nil {
				return models.LessonScope{}, lookupError(err, "student")
			}
			if student.ParentID == nil || *student.ParentID != viewer.UserID {
				return models.LessonScope{}, appErrors.Clone(appErrors.ErrPermissionDenied, "student is not linked to this parent")
			}
		}
		return models.LessonScope{StudentID: viewer.StudentID}, nil

	case models.RoleAdmin:
		if (viewer.TeacherID == "") == (viewer.StudentID == "") {
			return models.LessonScope{}, appErrors.Invalid("admin calendar requires exactly one of teacher_id or student_id")
		}
		return models.LessonScope{TeacherID: viewer.TeacherID, StudentID: viewer.StudentID}, nil

	case "":
		return models.LessonScope{}, appErrors.Invalid("role is required")
	default:
		return models.LessonScope{}, appErrors.Invalid(fmt.Sprintf("unknown role %q", viewer.Role))
	}
}

// List returns scoped lessons ordered by start within the half-open [start_date, end_date) range.
func (s *CalendarService) List(ctx context.Context, viewer models.Viewer, q dto.CalendarQuery) ([]models.LessonDetail, error) {
	scope, err := s.ResolveScope(ctx, viewer)
	if err != nil {
		return nil, err
	}
	from, err := s.parseBound(q.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	to, err := s.parseBound(q.EndDate, "end_date")
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, appErrors.Invalid("start_date must be before end_date")
	}

	lessons, err := s.lessons.List(ctx, models.LessonFilter{
		TeacherID:        scope.TeacherID,
		StudentID:        scope.StudentID,
		From:             from,
		To:               to,
		IncludeCancelled: q.IncludeCancelled,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load lessons")
	}
	if lessons == nil {
		lessons = []models.LessonDetail{}
	}
	return lessons, nil
}

// Upcoming returns the next scheduled lessons of the scope.
func (s *CalendarService) Upcoming(ctx context.Context, viewer models.Viewer, limit int) ([]models.LessonDetail, error) {
	if limit == 0 {
		limit = s.cfg.UpcomingDefaultLimit
	}
	if limit < 1 || limit > s.cfg.UpcomingMaxLimit {
		return nil, appErrors.Invalid(fmt.Sprintf("limit must be between 1 and %d", s.cfg.UpcomingMaxLimit))
	}
	scope, err := s.ResolveScope(ctx, viewer)
	if err != nil {
		return nil, err
	}
	from := s.now().UTC()
	lessons, err := s.lessons.List(ctx, models.LessonFilter{TeacherID: scope.TeacherID, StudentID: scope.StudentID, From: &from, Limit: limit})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load upcoming lessons")
	}
	if lessons == nil {
		lessons = []models.LessonDetail{}
	}
	return lessons, nil
}

// Stats counts this week's, regular and rescheduled scheduled lessons of the scope.
func (s *CalendarService) Stats(ctx context.Context, viewer models.Viewer) (*models.LessonStats, error) {
	scope, err := s.ResolveScope(ctx, viewer)
	if err != nil {
		return nil, err
	}
	weekFrom := startOfWeek(s.now(), s.cfg.Location)
	stats, err := s.lessons.Stats(ctx, scope, weekFrom, weekFrom.AddDate(0, 0, 7))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to compute calendar stats")
	}
	return stats, nil
}

// Export renders the scoped lesson list in the requested format.
func (s *CalendarService) Export(ctx context.Context, viewer models.Viewer, q dto.CalendarQuery) (*export.File, error) {
	format, err := export.ParseFormat(q.Format)
	if err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	lessons, err := s.List(ctx, viewer, q)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case export.FormatICS:
		payload, err = s.ics.Render(s.exports.Title, s.events(lessons))
	case export.FormatPDF:
		payload, err = s.pdf.Render(s.table(lessons))
	case export.FormatXLSX:
		payload, err = s.xlsx.Render(s.table(lessons))
	default:
		payload, err = s.csv.Render(s.table(lessons))
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	s.logger.Debug("calendar exported", zap.String("format", string(format)), zap.Int("lessons", len(lessons)))
	return &export.File{
		Name:        fmt.Sprintf("lessons-%s.%s", s.now().In(s.cfg.Location).Format("20060102"), format),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

// parseBound accepts YYYY-MM-DD (local midnight) or an ISO-8601 timestamp.
func (s *CalendarService) parseBound(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(dateLayout, raw, s.cfg.Location); err == nil {
		return &t, nil
	}
	t, err := dto.ParseTimestamp(raw)
	if err != nil {
		return nil, appErrors.Invalid(field + " must be YYYY-MM-DD or an ISO-8601 timestamp")
	}
	t = dto.ResolveLocal(t, s.cfg.Location)
	return &t, nil
}

var exportHeaders = []string{"Date", "Start", "End", "Minutes", "Teacher", "Student", "Regular", "Status", "Rescheduled"}

func (s *CalendarService) table(lessons []models.LessonDetail) export.Table {
	rows := make([][]string, 0, len(lessons))
	for _, l := range lessons {
		start, end := l.StartTime.In(s.cfg.Location), l.EndTime.In(s.cfg.Location)
		rows = append(rows, []string{
			start.Format(dateLayout),
			start.Format("15:04"),
			end.Format("15:04"),
			fmt.Sprintf("%d", l.DurationMinutes),
			l.TeacherName,
			l.StudentName,
			yesNo(l.IsRegular),
			string(l.Status),
			yesNo(l.Rescheduled()),
		})
	}
	return export.Table{Title: s.exports.Title, Headers: exportHeaders, Rows: rows}
}

func (s *CalendarService) events(lessons []models.LessonDetail) []export.Event {
	events := make([]export.Event, 0, len(lessons))
	for _, l := range lessons {
		summary := fmt.Sprintf("Lesson: %s with %s", l.StudentName, l.TeacherName)
		description := ""
		if l.IsRegular {
			description = "Regular weekly lesson"
		}
		events = append(events, export.Event{
			UID:         l.ID,
			Summary:     summary,
			Description: description,
			Start:       l.StartTime,
			End:         l.EndTime,
			Created:     l.CreatedAt,
			Modified:    l.UpdatedAt,
			Cancelled:   l.Status == models.LessonStatusCancelled,
		})
	}
	return events
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
