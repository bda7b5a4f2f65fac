package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/database"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

type teacherDirectory interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	Create(ctx context.Context, teacher *models.Teacher) error
}

type studentDirectory interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	Create(ctx context.Context, student *models.Student) error
}

type parentDirectory interface {
	List(ctx context.Context, page, size int) ([]models.Parent, int, error)
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	Create(ctx context.Context, parent *models.Parent) error
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	FullName string  `json:"full_name" validate:"required,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Active   *bool   `json:"active"`
}

// CreateStudentRequest represents payload for creating students.
type CreateStudentRequest struct {
	FullName string  `json:"full_name" validate:"required,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Level    *string `json:"level" validate:"omitempty,max=50"`
	ParentID *string `json:"parent_id" validate:"omitempty"`
}

// CreateParentRequest represents payload for creating parents.
type CreateParentRequest struct {
	FullName string  `json:"full_name" validate:"required,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
}

// DirectoryService manages the administrative records lessons refer to.
type DirectoryService struct {
	teachers  teacherDirectory
	students  studentDirectory
	parents   parentDirectory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectoryService constructs the service.
func NewDirectoryService(teachers teacherDirectory, students studentDirectory, parents parentDirectory, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{teachers: teachers, students: students, parents: parents, validator: validate, logger: logger}
}

// ListTeachers returns teachers with pagination metadata.
func (s *DirectoryService) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list teachers")
	}
	return teachers, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// CreateTeacher registers a teacher; new teachers are active unless stated otherwise.
func (s *DirectoryService) CreateTeacher(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	teacher := &models.Teacher{FullName: req.FullName, Email: req.Email, Active: true}
	if req.Active != nil {
		teacher.Active = *req.Active
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		return nil, writeError(err, "teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return teacher, nil
}

// ListStudents returns students with their parent's name.
func (s *DirectoryService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// CreateStudent registers a student, optionally linked to an existing parent.
func (s *DirectoryService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = normalizeEmail(req.Email)
	req.Level = trimOptional(req.Level)
	req.ParentID = trimOptional(req.ParentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	if req.ParentID != nil {
		if _, err := s.parents.FindByID(ctx, *req.ParentID); err != nil {
			return nil, lookupError(err, "parent")
		}
	}
	student := &models.Student{
		FullName: req.FullName,
		Email:    req.Email,
		Level:    req.Level,
		ParentID: req.ParentID,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, writeError(err, "student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID))
	return student, nil
}

// ListParents returns parents with pagination metadata.
func (s *DirectoryService) ListParents(ctx context.Context, page, size int) ([]models.Parent, *models.Pagination, error) {
	page, size = models.NormalizePage(page, size)
	parents, total, err := s.parents.List(ctx, page, size)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list parents")
	}
	return parents, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CreateParent registers a parent.
func (s *DirectoryService) CreateParent(ctx context.Context, req CreateParentRequest) (*models.Parent, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = normalizeEmail(req.Email)
	req.Phone = trimOptional(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err.Error())
	}
	parent := &models.Parent{FullName: req.FullName, Email: req.Email, Phone: req.Phone}
	if err := s.parents.Create(ctx, parent); err != nil {
		return nil, writeError(err, "parent")
	}
	s.logger.Info("parent created", zap.String("parent_id", parent.ID))
	return parent, nil
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func writeError(err error, entity string) error {
	switch {
	case database.IsUniqueViolation(err):
		return appErrors.Invalid(entity + " email already exists")
	case database.IsForeignKeyViolation(err):
		return appErrors.Clone(appErrors.ErrNotFound, "referenced record not found")
	default:
		return appErrors.Internal(err, "failed to create "+entity)
	}
}
