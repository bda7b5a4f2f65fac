package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// BookingService creates lessons after validating availability and conflicts under the teacher lock.
type BookingService struct {
	teachers  teacherStore
	students  studentStore
	rules     availabilityStore
	lessons   lessonStore
	tx        txRunner
	locks     *TeacherLocks
	cache     availabilityCache
	metrics   *MetricsService
	planner   *slotPlanner
	cfg       config.CalendarConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService constructs the service.
func NewBookingService(teachers teacherStore, students studentStore, rules availabilityStore, lessons lessonStore, tx txRunner, locks *TeacherLocks, cache availabilityCache, metrics *MetricsService, cfg config.CalendarConfig, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewTeacherLocks()
	}
	cfg = normalizeCalendarConfig(cfg)
	return &BookingService{
		teachers:  teachers,
		students:  students,
		rules:     rules,
		lessons:   lessons,
		tx:        tx,
		locks:     locks,
		cache:     cache,
		metrics:   metrics,
		planner:   &slotPlanner{lessons: lessons, loc: cfg.Location},
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Book creates one lesson, or Occurrences weekly lessons sharing a series id.
// Either every occurrence is created or none is.
func (s *BookingService) Book(ctx context.Context, req dto.BookLessonRequest) (result *models.BookingResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("book", err, time.Since(started)) }()

	req.StartTime = dto.ResolveLocal(req.StartTime, s.cfg.Location)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	duration, err := lessonDuration(req.DurationMinutes, s.cfg)
	if err != nil {
		return nil, err
	}
	occurrences := req.Occurrences
	if occurrences == 0 {
		occurrences = 1
	}
	if occurrences > s.cfg.MaxSeriesOccurrences {
		return nil, appErrors.Invalid(fmt.Sprintf("occurrences must not exceed %d", s.cfg.MaxSeriesOccurrences))
	}
	if !req.IsRegular && (occurrences > 1 || req.SeriesID != nil) {
		return nil, appErrors.Invalid("only regular lessons can form a series")
	}
	now := s.now().UTC()
	if req.StartTime.Before(now) {
		return nil, appErrors.Invalid("start_time must be in the future")
	}

	candidates := make([]candidate, occurrences)
	first := req.StartTime.In(s.cfg.Location)
	for i := range candidates {
		start := first.AddDate(0, 0, 7*i)
		candidates[i] = candidate{start: start, end: start.Add(duration)}
	}

	unlock := s.locks.lock(req.TeacherID)
	defer unlock()

	var ids []string
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		ids = ids[:0]
		teacher, err := s.teachers.LockForUpdate(ctx, tx, req.TeacherID)
		if err != nil {
			return lookupError(err, "teacher")
		}
		if !teacher.Active {
			return appErrors.Invalid("teacher is not active")
		}
		if _, err := s.students.FindByID(ctx, tx, req.StudentID); err != nil {
			return lookupError(err, "student")
		}
		seriesID, err := s.seriesFor(ctx, tx, req)
		if err != nil {
			return err
		}

		rules, err := s.rules.ListRecurringByTeacher(ctx, tx, req.TeacherID)
		if err != nil {
			return appErrors.Internal(err, "failed to load availability")
		}
		if err := s.planner.validate(ctx, tx, req.TeacherID, rules, candidates); err != nil {
			return err
		}

		for _, c := range candidates {
			lesson := &models.Lesson{
				TeacherID:       req.TeacherID,
				StudentID:       req.StudentID,
				SeriesID:        seriesID,
				StartTime:       c.start.UTC(),
				EndTime:         c.end.UTC(),
				DurationMinutes: int(duration / time.Minute),
				IsRegular:       req.IsRegular,
				Status:          models.LessonStatusScheduled,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.lessons.Create(ctx, tx, lesson); err != nil {
				return err
			}
			ids = append(ids, lesson.ID)
		}
		return nil
	})
	if err != nil {
		return nil, mutationError(err, "failed to book lesson")
	}

	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, req.TeacherID)
	}
	s.metrics.AddLessons("created", len(ids))
	s.logger.Info("lesson booked",
		zap.String("teacher_id", req.TeacherID),
		zap.String("student_id", req.StudentID),
		zap.Time("start", req.StartTime),
		zap.Int("occurrences", len(ids)),
	)

	details, err := s.lessons.FindDetails(ctx, nil, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load booked lessons")
	}
	if len(details) == 0 {
		return nil, appErrors.Internal(fmt.Errorf("booked lessons %v not visible", ids), "failed to load booked lessons")
	}
	return &models.BookingResult{Lesson: details[0], Occurrences: details}, nil
}

// seriesFor returns the series id for the new lessons: nil for one-off lessons,
// a fresh id for a new series, or the requested id when it belongs to the same pair.
func (s *BookingService) seriesFor(ctx context.Context, tx *sqlx.Tx, req dto.BookLessonRequest) (*string, error) {
	if !req.IsRegular {
		return nil, nil
	}
	if req.SeriesID == nil {
		id := uuid.NewString()
		return &id, nil
	}
	member, err := s.lessons.FindSeriesMember(ctx, tx, *req.SeriesID)
	if err != nil {
		return nil, lookupError(err, "series")
	}
	if member.TeacherID != req.TeacherID || member.StudentID != req.StudentID {
		return nil, appErrors.Invalid("series belongs to a different teacher or student")
	}
	id := *req.SeriesID
	return &id, nil
}
