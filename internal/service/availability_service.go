package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// AvailabilityService resolves weekly availability, replaces rule sets and probes single slots.
type AvailabilityService struct {
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

// NewAvailabilityService constructs the service.
func NewAvailabilityService(teachers teacherStore, rules availabilityStore, lessons lessonStore, tx txRunner, locks *TeacherLocks, cache availabilityCache, metrics *MetricsService, cfg config.CalendarConfig, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
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
	return &AvailabilityService{
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

// GetAvailability returns the teacher's recurring rules and the scheduled lessons of the
// 7 days starting at weekStart, plus the free windows left between them.
// An empty weekStart means today in the calendar timezone. The bool reports a cache hit.
func (s *AvailabilityService) GetAvailability(ctx context.Context, teacherID, weekStart string) (*models.WeeklyAvailability, bool, error) {
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		return nil, false, appErrors.Invalid("teacher_id is required")
	}
	from, err := s.parseWeekStart(weekStart)
	if err != nil {
		return nil, false, err
	}
	key := from.Format(dateLayout)

	var generation int64
	cacheable := false
	if s.cache != nil {
		generation, cacheable = s.cache.Generation(ctx, teacherID)
	}
	var cached models.WeeklyAvailability
	if cacheable && s.cache.GetAvailability(ctx, teacherID, generation, key, &cached) {
		return &cached, true, nil
	}

	rules, err := s.rules.ListRecurringByTeacher(ctx, nil, teacherID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load availability")
	}
	lessons, err := s.lessons.ListTeacherWeek(ctx, teacherID, from, from.AddDate(0, 0, 7))
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load lessons")
	}
	if rules == nil {
		rules = []models.AvailabilityRule{}
	}
	if lessons == nil {
		lessons = []models.LessonDetail{}
	}

	result := &models.WeeklyAvailability{
		TeacherID:   teacherID,
		WeekStart:   key,
		Timezone:    s.cfg.Location.String(),
		Rules:       rules,
		Lessons:     lessons,
		FreeWindows: freeWindows(from, rules, lessons, s.cfg.Location),
	}
	if cacheable {
		s.cache.SetAvailability(ctx, teacherID, generation, key, result)
	}
	return result, false, nil
}

// ReplaceAvailability swaps the teacher's whole rule set in one transaction.
func (s *AvailabilityService) ReplaceAvailability(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) (rules []models.AvailabilityRule, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("replace_availability", err, time.Since(started)) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	rules, err = rulesFromInput(req.Availability)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(teacherID)
	defer unlock()

	err = s.tx.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.teachers.LockForUpdate(ctx, tx, teacherID); err != nil {
			return lookupError(err, "teacher")
		}
		if err := s.rules.ReplaceForTeacher(ctx, tx, teacherID, rules); err != nil {
			return appErrors.Internal(err, "failed to replace availability")
		}
		return nil
	})
	if err != nil {
		return nil, mutationError(err, "failed to replace availability")
	}

	if s.cache != nil {
		s.cache.InvalidateTeacher(ctx, teacherID)
	}
	s.logger.Info("availability replaced", zap.String("teacher_id", teacherID), zap.Int("rules", len(rules)))
	return rules, nil
}

// CheckSlot reports whether [start, start+duration) could be booked now, using the booking checks without writing.
func (s *AvailabilityService) CheckSlot(ctx context.Context, teacherID string, start time.Time, durationMinutes int) (*models.SlotCheck, error) {
	if strings.TrimSpace(teacherID) == "" {
		return nil, appErrors.Invalid("teacher_id is required")
	}
	if start.IsZero() {
		return nil, appErrors.Invalid("start is required")
	}
	start = dto.ResolveLocal(start, s.cfg.Location)
	duration, err := lessonDuration(durationMinutes, s.cfg)
	if err != nil {
		return nil, err
	}
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		return nil, lookupError(err, "teacher")
	}
	rules, err := s.rules.ListRecurringByTeacher(ctx, nil, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}

	end := start.Add(duration)
	check := &models.SlotCheck{TeacherID: teacherID, Start: start, End: end, Free: true}
	err = s.planner.validate(ctx, nil, teacherID, rules, []candidate{{start: start, end: end}})
	if err == nil {
		return check, nil
	}

	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrOutsideAvailability.Code:
		check.Free = false
		check.Reason = models.SlotReasonOutsideAvailability
	case appErrors.ErrSlotConflict.Code:
		check.Free = false
		check.Reason = models.SlotReasonConflict
		if conflict, ok := appErr.Details.(*models.SlotConflictError); ok {
			check.Conflicts = conflict.Conflicts
		}
	default:
		return nil, err
	}
	return check, nil
}

func (s *AvailabilityService) parseWeekStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return startOfDay(s.now(), s.cfg.Location), nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, s.cfg.Location)
	if err != nil {
		return time.Time{}, appErrors.Invalid("week_start must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func rulesFromInput(inputs []dto.AvailabilityRuleInput) ([]models.AvailabilityRule, error) {
	rules := make([]models.AvailabilityRule, 0, len(inputs))
	for i, in := range inputs {
		recurring := true
		if in.IsRecurring != nil {
			recurring = *in.IsRecurring
		}
		rule := models.AvailabilityRule{DayOfWeek: *in.Day, StartTime: in.Start, EndTime: in.End, IsRecurring: recurring}
		if _, _, err := rule.Window(); err != nil {
			return nil, appErrors.Invalid(fmt.Sprintf("availability[%d]: %v", i, err))
		}
		rules = append(rules, rule)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].DayOfWeek != rules[j].DayOfWeek {
			return rules[i].DayOfWeek < rules[j].DayOfWeek
		}
		return rules[i].StartTime < rules[j].StartTime
	})
	return rules, nil
}

func lessonDuration(minutes int, cfg config.CalendarConfig) (time.Duration, error) {
	if minutes == 0 {
		minutes = cfg.DefaultLessonMinutes
	}
	if minutes < 1 || minutes > cfg.MaxLessonMinutes {
		return 0, appErrors.Invalid(fmt.Sprintf("duration_minutes must be between 1 and %d", cfg.MaxLessonMinutes))
	}
	return time.Duration(minutes) * time.Minute, nil
}

func normalizeCalendarConfig(cfg config.CalendarConfig) config.CalendarConfig {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultLessonMinutes <= 0 {
		cfg.DefaultLessonMinutes = 60
	}
	if cfg.MaxLessonMinutes <= 0 {
		cfg.MaxLessonMinutes = 240
	}
	if cfg.MaxSeriesOccurrences <= 0 {
		cfg.MaxSeriesOccurrences = 52
	}
	if cfg.UpcomingDefaultLimit <= 0 {
		cfg.UpcomingDefaultLimit = 5
	}
	if cfg.UpcomingMaxLimit <= 0 {
		cfg.UpcomingMaxLimit = 20
	}
	return cfg
}
