package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

const (
	lessonColumns = `id, teacher_id, student_id, series_id, start_time, end_time, duration_minutes, is_regular, status, created_at, updated_at`

	lessonDetailSelect = `SELECT l.id, l.teacher_id, l.student_id, l.series_id, l.start_time, l.end_time, l.duration_minutes,
l.is_regular, l.status, l.created_at, l.updated_at, t.full_name AS teacher_name, s.full_name AS student_name
FROM lessons l
JOIN teachers t ON t.id = l.teacher_id
JOIN students s ON s.id = l.student_id`
)

// LessonRepository persists lessons. Rows are never hard-deleted.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID loads a lesson. Inside a transaction the row is locked until commit.
func (r *LessonRepository) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	if tx != nil {
		query += ` FOR UPDATE`
	}
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, conn(r.db, tx), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindSeriesMember returns any lesson carrying seriesID.
func (r *LessonRepository) FindSeriesMember(ctx context.Context, tx *sqlx.Tx, seriesID string) (*models.Lesson, error) {
	var lesson models.Lesson
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE series_id = $1 ORDER BY start_time ASC LIMIT 1`
	if err := sqlx.GetContext(ctx, conn(r.db, tx), &lesson, query, seriesID); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindDetails loads lessons with display names, ordered by start.
func (r *LessonRepository) FindDetails(ctx context.Context, tx *sqlx.Tx, ids []string) ([]models.LessonDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := lessonDetailSelect + ` WHERE l.id = ANY($1) ORDER BY l.start_time ASC, l.id ASC`
	var lessons []models.LessonDetail
	if err := sqlx.SelectContext(ctx, conn(r.db, tx), &lessons, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load lesson details: %w", err)
	}
	return lessons, nil
}

// ListOverlapping returns scheduled lessons of the teacher intersecting [start, end).
func (r *LessonRepository) ListOverlapping(ctx context.Context, tx *sqlx.Tx, teacherID string, start, end time.Time) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE teacher_id = $1 AND status = 'scheduled' AND start_time < $3 AND end_time > $2
ORDER BY start_time ASC`
	var lessons []models.Lesson
	if err := sqlx.SelectContext(ctx, conn(r.db, tx), &lessons, query, teacherID, start, end); err != nil {
		return nil, fmt.Errorf("list overlapping lessons: %w", err)
	}
	return lessons, nil
}

// ListTeacherWeek returns the teacher's scheduled lessons overlapping [from, to), including one that began before from.
func (r *LessonRepository) ListTeacherWeek(ctx context.Context, teacherID string, from, to time.Time) ([]models.LessonDetail, error) {
	query := lessonDetailSelect + `
WHERE l.teacher_id = $1 AND l.status = 'scheduled' AND l.start_time < $3 AND l.end_time > $2
ORDER BY l.start_time ASC, l.id ASC`
	var lessons []models.LessonDetail
	if err := r.db.SelectContext(ctx, &lessons, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list teacher week: %w", err)
	}
	return lessons, nil
}

// ListSeries returns scheduled lessons of a series starting at or after from.
func (r *LessonRepository) ListSeries(ctx context.Context, tx *sqlx.Tx, seriesID string, from time.Time) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE series_id = $1 AND status = 'scheduled' AND start_time >= $2
ORDER BY start_time ASC`
	var lessons []models.Lesson
	if err := sqlx.SelectContext(ctx, conn(r.db, tx), &lessons, query, seriesID, from); err != nil {
		return nil, fmt.Errorf("list series lessons: %w", err)
	}
	return lessons, nil
}

// ListRegularUnlinked returns scheduled regular lessons without a series id for the
// teacher/student pair starting at or after from. Pattern matching happens in the caller.
func (r *LessonRepository) ListRegularUnlinked(ctx context.Context, tx *sqlx.Tx, teacherID, studentID string, from time.Time) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE teacher_id = $1 AND student_id = $2 AND is_regular = TRUE AND series_id IS NULL
AND status = 'scheduled' AND start_time >= $3
ORDER BY start_time ASC`
	var lessons []models.Lesson
	if err := sqlx.SelectContext(ctx, conn(r.db, tx), &lessons, query, teacherID, studentID, from); err != nil {
		return nil, fmt.Errorf("list regular lessons: %w", err)
	}
	return lessons, nil
}

// Create inserts a lesson.
func (r *LessonRepository) Create(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusScheduled
	}
	const query = `INSERT INTO lessons (id, teacher_id, student_id, series_id, start_time, end_time, duration_minutes, is_regular, status, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :series_id, :start_time, :end_time, :duration_minutes, :is_regular, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(r.db, tx), query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// UpdateSchedule moves a lesson; created_at is left untouched.
func (r *LessonRepository) UpdateSchedule(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	const query = `UPDATE lessons SET start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(r.db, tx), query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson schedule: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus transitions a lesson's status.
func (r *LessonRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.LessonStatus, at time.Time) error {
	res, err := conn(r.db, tx).ExecContext(ctx, `UPDATE lessons SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	return expectAffected(res)
}

// List returns lessons for exactly one teacher or student ordered by start.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, error) {
	where, args := lessonConditions(filter)
	query := lessonDetailSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY l.start_time ASC, l.id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	var lessons []models.LessonDetail
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// Stats aggregates scheduled lessons for a scope; the week bounds are half-open.
func (r *LessonRepository) Stats(ctx context.Context, scope models.LessonScope, weekFrom, weekTo time.Time) (*models.LessonStats, error) {
	where, args := lessonConditions(models.LessonFilter{TeacherID: scope.TeacherID, StudentID: scope.StudentID})
	n := len(args)
	query := fmt.Sprintf(`SELECT
COUNT(*) FILTER (WHERE l.start_time >= $%d AND l.start_time < $%d) AS week_lessons,
COUNT(*) FILTER (WHERE l.is_regular) AS regular_lessons,
COUNT(*) FILTER (WHERE l.updated_at <> l.created_at) AS rescheduled_lessons
FROM lessons l WHERE %s`, n+1, n+2, strings.Join(where, " AND "))
	args = append(args, weekFrom, weekTo)

	var stats models.LessonStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("lesson stats: %w", err)
	}
	return &stats, nil
}

func lessonConditions(filter models.LessonFilter) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.TeacherID != "" {
		add("l.teacher_id = $%d", filter.TeacherID)
	}
	if filter.StudentID != "" {
		add("l.student_id = $%d", filter.StudentID)
	}
	if filter.From != nil {
		add("l.start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("l.start_time < $%d", *filter.To)
	}
	if !filter.IncludeCancelled {
		where = append(where, "l.status = 'scheduled'")
	}
	if len(where) == 0 {
		where = append(where, "1=1")
	}
	return where, args
}
