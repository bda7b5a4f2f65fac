package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

// ParentRepository persists parent contact records.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs the repository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// List returns parents ordered by name.
func (r *ParentRepository) List(ctx context.Context, page, size int) ([]models.Parent, int, error) {
	page, size = models.NormalizePage(page, size)
	query := fmt.Sprintf(`SELECT id, full_name, email, phone, created_at, updated_at FROM parents ORDER BY full_name ASC, id ASC LIMIT %d OFFSET %d`, size, (page-1)*size)
	var parents []models.Parent
	if err := r.db.SelectContext(ctx, &parents, query); err != nil {
		return nil, 0, fmt.Errorf("list parents: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM parents`); err != nil {
		return nil, 0, fmt.Errorf("count parents: %w", err)
	}
	return parents, total, nil
}

// FindByID loads a parent by id.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, `SELECT id, full_name, email, phone, created_at, updated_at FROM parents WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &parent, nil
}

// Create inserts a parent.
func (r *ParentRepository) Create(ctx context.Context, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = now
	}
	parent.UpdatedAt = parent.CreatedAt

	if _, err := sqlx.NamedExecContext(ctx, r.db, `INSERT INTO parents (id, full_name, email, phone, created_at, updated_at) VALUES (:id, :full_name, :email, :phone, :created_at, :updated_at)`, parent); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}
