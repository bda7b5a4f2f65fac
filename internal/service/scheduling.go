package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/database"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type teacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Teacher, error)
}

type studentStore interface {
	FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
}

type availabilityStore interface {
	ListRecurringByTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string) ([]models.AvailabilityRule, error)
	ReplaceForTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string, rules []models.AvailabilityRule) error
}

type lessonStore interface {
	FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error)
	FindSeriesMember(ctx context.Context, tx *sqlx.Tx, seriesID string) (*models.Lesson, error)
	FindDetails(ctx context.Context, tx *sqlx.Tx, ids []string) ([]models.LessonDetail, error)
	ListOverlapping(ctx context.Context, tx *sqlx.Tx, teacherID string, start, end time.Time) ([]models.Lesson, error)
	ListTeacherWeek(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error)
	ListSeries(ctx context.Context, tx *sqlx.Tx, seriesID string, from time.Time) ([]models.Lesson, error)
	ListRegularUnlinked(ctx context.Context, tx *sqlx.Tx, teacherID, studentID string, from time.Time) ([]models.Lesson, error)
	Create(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	UpdateSchedule(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.LessonStatus, at time.Time) error
	List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, error)
	Stats(ctx context.Context, scope models.LessonScope, weekFrom, weekTo time.Time) (*models.LessonStats, error)
}

type availabilityCache interface {
	Generation(ctx context.Context, teacherID string) (int64, bool)
	GetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, dest *models.WeeklyAvailability) bool
	SetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, value *models.WeeklyAvailability)
	InvalidateTeacher(ctx context.Context, teacherID string)
}

// TeacherLocks serialises calendar mutations per teacher inside this process.
// The row lock taken in the same scope covers other processes.
type TeacherLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewTeacherLocks constructs an empty lock table shared by every mutating service.
func NewTeacherLocks() *TeacherLocks {
	return &TeacherLocks{locks: make(map[string]*refLock)}
}

func (l *TeacherLocks) lock(teacherID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[teacherID]
	if !ok {
		entry = &refLock{}
		l.locks[teacherID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, teacherID)
		}
		l.mu.Unlock()
	}
}

func outsideAvailabilityError(v *models.AvailabilityViolation) error {
	err := appErrors.Clone(appErrors.ErrOutsideAvailability, v.Message)
	err.Details = v
	err.Err = v
	return err
}

func slotConflictError(c *models.SlotConflictError) error {
	err := appErrors.Clone(appErrors.ErrSlotConflict, c.Message)
	err.Details = c
	err.Err = c
	return err
}

func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Internal(err, "failed to load "+entity)
}

// mutationError maps a failed unit of work onto the error taxonomy.
// Exclusion violations surface on commit when the constraint is deferred.
func mutationError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsExclusionViolation(err) {
		return slotConflictError(&models.SlotConflictError{Message: "requested time overlaps an existing lesson"})
	}
	return appErrors.Internal(err, message)
}
