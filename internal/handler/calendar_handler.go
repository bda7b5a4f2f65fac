package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/export"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

type calendarService interface {
	List(ctx context.Context, viewer models.Viewer, q dto.CalendarQuery) ([]models.LessonDetail, error)
	Upcoming(ctx context.Context, viewer models.Viewer, limit int) ([]models.LessonDetail, error)
	Stats(ctx context.Context, viewer models.Viewer) (*models.LessonStats, error)
	Export(ctx context.Context, viewer models.Viewer, q dto.CalendarQuery) (*export.File, error)
}

// CalendarHandler serves role-scoped lesson listings and exports.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

func (h *CalendarHandler) bind(c *gin.Context) (dto.CalendarQuery, models.Viewer, bool) {
	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, invalidPayload(err, "calendar query"))
		return q, models.Viewer{}, false
	}
	return q, viewerFromRequest(c, q), true
}

// Lessons godoc
// @Summary List lessons visible to the viewer
// @Tags Calendar
// @Produce json
// @Param role query string false "teacher, parent or admin (ignored with a bearer token)"
// @Param user_id query string false "Viewer id"
// @Param teacher_id query string false "Teacher filter"
// @Param student_id query string false "Student filter"
// @Param start_date query string false "Inclusive lower bound (YYYY-MM-DD or ISO-8601)"
// @Param end_date query string false "Exclusive upper bound (YYYY-MM-DD or ISO-8601)"
// @Param include_cancelled query bool false "Include cancelled lessons"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /calendar/lessons [get]
func (h *CalendarHandler) Lessons(c *gin.Context) {
	q, viewer, ok := h.bind(c)
	if !ok {
		return
	}
	lessons, err := h.service.List(c.Request.Context(), viewer, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil, map[string]interface{}{"count": len(lessons)})
}

// Upcoming godoc
// @Summary Next scheduled lessons of the viewer
// @Tags Calendar
// @Produce json
// @Param limit query int false "Number of lessons (1-20, default 5)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /calendar/upcoming [get]
func (h *CalendarHandler) Upcoming(c *gin.Context) {
	q, viewer, ok := h.bind(c)
	if !ok {
		return
	}
	lessons, err := h.service.Upcoming(c.Request.Context(), viewer, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Stats godoc
// @Summary Lesson counters for the viewer's calendar
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /calendar/stats [get]
func (h *CalendarHandler) Stats(c *gin.Context) {
	_, viewer, ok := h.bind(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export lessons visible to the viewer
// @Tags Calendar
// @Produce octet-stream
// @Param format query string false "csv, pdf, ics or xlsx"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /calendar/export [get]
func (h *CalendarHandler) Export(c *gin.Context) {
	q, viewer, ok := h.bind(c)
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), viewer, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Name, file.Data)
}
