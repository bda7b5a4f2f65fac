package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/internal/service"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

type directoryService interface {
	ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error)
	CreateTeacher(ctx context.Context, req service.CreateTeacherRequest) (*models.Teacher, error)
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
	CreateStudent(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error)
	ListParents(ctx context.Context, page, size int) ([]models.Parent, *models.Pagination, error)
	CreateParent(ctx context.Context, req service.CreateParentRequest) (*models.Parent, error)
}

// DirectoryHandler exposes the administrative teacher, student and parent records.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(service directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

// ListTeachers godoc
// @Summary List teachers
// @Tags Admin
// @Produce json
// @Param search query string false "Search by name or email"
// @Param active query bool false "Filter by active status"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/teachers [get]
func (h *DirectoryHandler) ListTeachers(c *gin.Context) {
	filter := models.TeacherFilter{Search: strings.TrimSpace(c.Query("search"))}
	if active, err := strconv.ParseBool(c.Query("active")); err == nil {
		filter.Active = &active
	}
	filter.Page, filter.PageSize = pageParams(c)

	teachers, pagination, err := h.service.ListTeachers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// CreateTeacher godoc
// @Summary Create teacher
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/teachers [post]
func (h *DirectoryHandler) CreateTeacher(c *gin.Context) {
	var req service.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "teacher"))
		return
	}
	teacher, err := h.service.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// ListStudents godoc
// @Summary List students with their parent
// @Tags Admin
// @Produce json
// @Param search query string false "Search by name or email"
// @Param parent_id query string false "Filter by parent"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students [get]
func (h *DirectoryHandler) ListStudents(c *gin.Context) {
	filter := models.StudentFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		ParentID: strings.TrimSpace(c.Query("parent_id")),
	}
	filter.Page, filter.PageSize = pageParams(c)

	students, pagination, err := h.service.ListStudents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// CreateStudent godoc
// @Summary Create student
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/students [post]
func (h *DirectoryHandler) CreateStudent(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "student"))
		return
	}
	student, err := h.service.CreateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// ListParents godoc
// @Summary List parents
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/parents [get]
func (h *DirectoryHandler) ListParents(c *gin.Context) {
	page, size := pageParams(c)
	parents, pagination, err := h.service.ListParents(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parents, pagination)
}

// CreateParent godoc
// @Summary Create parent
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateParentRequest true "Parent payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/parents [post]
func (h *DirectoryHandler) CreateParent(c *gin.Context) {
	var req service.CreateParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "parent"))
		return
	}
	parent, err := h.service.CreateParent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, parent)
}
