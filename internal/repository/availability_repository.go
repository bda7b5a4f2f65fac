package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

// AvailabilityRepository persists weekly availability rules.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListRecurringByTeacher returns recurring rules ordered by weekday then start time.
func (r *AvailabilityRepository) ListRecurringByTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string) ([]models.AvailabilityRule, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_time, end_time, is_recurring, created_at
FROM availability_rules
WHERE teacher_id = $1 AND is_recurring = TRUE
ORDER BY day_of_week ASC, start_time ASC, end_time ASC`
	var rules []models.AvailabilityRule
	if err := sqlx.SelectContext(ctx, conn(r.db, tx), &rules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rules, nil
}

// ReplaceForTeacher deletes every rule of the teacher and inserts rules in their place.
// Callers run it inside tx so readers never see the intermediate empty set.
func (r *AvailabilityRepository) ReplaceForTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string, rules []models.AvailabilityRule) error {
	exec := conn(r.db, tx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM availability_rules WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("delete availability rules: %w", err)
	}

	const insert = `INSERT INTO availability_rules (id, teacher_id, day_of_week, start_time, end_time, is_recurring, created_at)
VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :is_recurring, :created_at)`
	now := time.Now().UTC()
	for i := range rules {
		rule := &rules[i]
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.TeacherID = teacherID
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, insert, rule); err != nil {
			return fmt.Errorf("insert availability rule: %w", err)
		}
	}
	return nil
}
