package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
)

func TestStudentRepositoryListJoinsParent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "full_name", "email", "level", "parent_id", "created_at", "updated_at", "parent_name"}).
		AddRow("student-1", "Masha", nil, "B1", "parent-1", now, now, "Olga")
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN parents p ON p.id = s.parent_id WHERE 1=1 AND s.parent_id = $1 ORDER BY s.full_name ASC, s.id ASC LIMIT 10 OFFSET 10")).
		WithArgs("parent-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s")).
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	students, total, err := repo.List(context.Background(), models.StudentFilter{ParentID: "parent-1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, students, 1)
	require.NotNil(t, students[0].ParentName)
	assert.Equal(t, "Olga", *students[0].ParentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "level", "parent_id", "created_at", "updated_at"}).
			AddRow("student-1", "Masha", nil, nil, nil, now, now))

	student, err := repo.FindByID(context.Background(), nil, "student-1")
	require.NoError(t, err)
	assert.Equal(t, "Masha", student.FullName)
	assert.Nil(t, student.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewParentRepository(db)

	mock.ExpectExec("INSERT INTO parents").
		WillReturnResult(sqlmock.NewResult(1, 1))

	parent := &models.Parent{FullName: "Olga"}
	require.NoError(t, repo.Create(context.Background(), parent))
	assert.NotEmpty(t, parent.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
