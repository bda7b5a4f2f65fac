package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

// StudentRepository handles persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students with their parent's display name.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN parents p ON p.id = s.parent_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.full_name ILIKE $%d OR s.email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ParentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT s.id, s.full_name, s.email, s.level, s.parent_id, s.created_at, s.updated_at, p.full_name AS parent_name %s ORDER BY s.full_name ASC, s.id ASC LIMIT %d OFFSET %d`, base, size, (page-1)*size)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID loads a student by id, inside tx when one is given.
func (r *StudentRepository) FindByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	var student models.Student
	const query = `SELECT id, full_name, email, level, parent_id, created_at, updated_at FROM students WHERE id = $1`
	if err := sqlx.GetContext(ctx, conn(r.db, tx), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = student.CreatedAt

	const query = `INSERT INTO students (id, full_name, email, level, parent_id, created_at, updated_at) VALUES (:id, :full_name, :email, :level, :parent_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
