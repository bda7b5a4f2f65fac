package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// LessonService moves and cancels booked lessons, singly or as a series.
type LessonService struct {
	teachers  teacherStore
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

// NewLessonService constructs the service.
func NewLessonService(teachers teacherStore, rules availabilityStore, lessons lessonStore, tx txRunner, locks *TeacherLocks, cache availabilityCache, metrics *MetricsService, cfg config.CalendarConfig, validate *validator.Validate, logger *zap.Logger) *LessonService {
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
	return &LessonService{
		teachers:  teachers,
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

// Reschedule moves a lesson to NewStartTime keeping its duration. With RescheduleSeries the
// future scheduled siblings shift by the same local day and clock delta. All moves commit together.
func (s *LessonService) Reschedule(ctx context.Context, lessonID string, req dto.RescheduleLessonRequest) (result *models.RescheduleResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("reschedule", err, time.Since(started)) }()

	req.NewStartTime = dto.ResolveLocal(req.NewStartTime, s.cfg.Location)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	current, err := s.lessons.FindByID(ctx, nil, lessonID)
	if err != nil {
		return nil, lookupError(err, "lesson")
	}

	unlock := s.locks.lock(current.TeacherID)
	defer unlock()

	now := s.now().UTC()
	var moved []string
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		moved = moved[:0]
		if _, err := s.teachers.LockForUpdate(ctx, tx, current.TeacherID); err != nil {
			return lookupError(err, "teacher")
		}
		anchor, err := s.lessons.FindByID(ctx, tx, lessonID)
		if err != nil {
			return lookupError(err, "lesson")
		}
		if anchor.Status != models.LessonStatusScheduled {
			return appErrors.Invalid("only scheduled lessons can be rescheduled")
		}
		if req.RescheduleSeries && !anchor.IsRegular {
			return appErrors.Invalid("lesson is not part of a regular series")
		}

		targets := []models.Lesson{*anchor}
		if req.RescheduleSeries {
			siblings, err := s.siblings(ctx, tx, anchor, now)
			if err != nil {
				return err
			}
			targets = append(targets, siblings...)
		}

		newStart := req.NewStartTime
		candidates := make([]candidate, len(targets))
		for i, lesson := range targets {
			start := newStart
			if i > 0 {
				start = shiftWallClock(lesson.StartTime, anchor.StartTime, newStart, s.cfg.Location)
			}
			if start.Before(now) {
				return appErrors.Invalid("lessons cannot be moved into the past")
			}
			candidates[i] = candidate{
				lessonID: lesson.ID,
				start:    start,
				end:      start.Add(time.Duration(lesson.DurationMinutes) * time.Minute),
			}
		}

		rules, err := s.rules.ListRecurringByTeacher(ctx, tx, anchor.TeacherID)
		if err != nil {
			return appErrors.Internal(err, "failed to load availability")
		}
		if err := s.planner.validate(ctx, tx, anchor.TeacherID, rules, candidates); err != nil {
			return err
		}

		for i := range targets {
			lesson := &targets[i]
			lesson.StartTime = candidates[i].start.UTC()
			lesson.EndTime = candidates[i].end.UTC()
			lesson.UpdatedAt = now
			if err := s.lessons.UpdateSchedule(ctx, tx, lesson); err != nil {
				return err
			}
			moved = append(moved, lesson.ID)
		}
		return nil
	})
	if err != nil {
		return nil, mutationError(err, "failed to reschedule lesson")
	}

	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, current.TeacherID)
	}
	s.metrics.AddLessons("moved", len(moved))
	s.logger.Info("lesson rescheduled",
		zap.String("lesson_id", lessonID),
		zap.Time("new_start", req.NewStartTime),
		zap.Bool("series", req.RescheduleSeries),
		zap.Int("moved", len(moved)),
	)

	details, err := s.lessons.FindDetails(ctx, nil, moved)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load rescheduled lessons")
	}
	result = &models.RescheduleResult{Moved: details}
	for _, d := range details {
		if d.ID == lessonID {
			result.Lesson = d
		}
	}
	return result, nil
}

// Cancel retires a lesson, or it and its future scheduled siblings, by status transition.
func (s *LessonService) Cancel(ctx context.Context, lessonID string, req dto.CancelLessonRequest) (result *models.CancellationResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("cancel", err, time.Since(started)) }()

	current, err := s.lessons.FindByID(ctx, nil, lessonID)
	if err != nil {
		return nil, lookupError(err, "lesson")
	}

	unlock := s.locks.lock(current.TeacherID)
	defer unlock()

	now := s.now().UTC()
	var cancelled []string
	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		cancelled = cancelled[:0]
		if _, err := s.teachers.LockForUpdate(ctx, tx, current.TeacherID); err != nil {
			return lookupError(err, "teacher")
		}
		anchor, err := s.lessons.FindByID(ctx, tx, lessonID)
		if err != nil {
			return lookupError(err, "lesson")
		}
		if anchor.Status != models.LessonStatusScheduled {
			return appErrors.Invalid("lesson is already cancelled")
		}
		if req.CancelSeries && !anchor.IsRegular {
			return appErrors.Invalid("lesson is not part of a regular series")
		}

		targets := []models.Lesson{*anchor}
		if req.CancelSeries {
			siblings, err := s.siblings(ctx, tx, anchor, now)
			if err != nil {
				return err
			}
			targets = append(targets, siblings...)
		}
		for _, lesson := range targets {
			if err := s.lessons.UpdateStatus(ctx, tx, lesson.ID, models.LessonStatusCancelled, now); err != nil {
				return err
			}
			cancelled = append(cancelled, lesson.ID)
		}
		return nil
	})
	if err != nil {
		return nil, mutationError(err, "failed to cancel lesson")
	}

	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, current.TeacherID)
	}
	s.metrics.AddLessons("cancelled", len(cancelled))
	s.logger.Info("lesson cancelled", zap.String("lesson_id", lessonID), zap.Int("cancelled", len(cancelled)))

	details, err := s.lessons.FindDetails(ctx, nil, cancelled)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load cancelled lessons")
	}
	return &models.CancellationResult{Cancelled: details}, nil
}

// siblings returns the anchor's scheduled series members starting at or after now, anchor excluded.
// Lessons booked before series ids existed are matched by teacher, student, weekday and clock time.
func (s *LessonService) siblings(ctx context.Context, tx *sqlx.Tx, anchor *models.Lesson, now time.Time) ([]models.Lesson, error) {
	var (
		candidates []models.Lesson
		err        error
	)
	if anchor.SeriesID != nil {
		candidates, err = s.lessons.ListSeries(ctx, tx, *anchor.SeriesID, now)
	} else {
		candidates, err = s.lessons.ListRegularUnlinked(ctx, tx, anchor.TeacherID, anchor.StudentID, now)
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load series")
	}

	siblings := make([]models.Lesson, 0, len(candidates))
	for _, lesson := range candidates {
		if lesson.ID == anchor.ID {
			continue
		}
		if anchor.SeriesID == nil && !samePattern(*anchor, lesson, s.cfg.Location) {
			continue
		}
		siblings = append(siblings, lesson)
	}
	return siblings, nil
}
