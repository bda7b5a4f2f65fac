package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

type lessonService interface {
	Reschedule(ctx context.Context, lessonID string, req dto.RescheduleLessonRequest) (*models.RescheduleResult, error)
	Cancel(ctx context.Context, lessonID string, req dto.CancelLessonRequest) (*models.CancellationResult, error)
}

// LessonHandler moves and cancels lessons.
type LessonHandler struct {
	service lessonService
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(service lessonService) *LessonHandler {
	return &LessonHandler{service: service}
}

// Reschedule godoc
// @Summary Reschedule a lesson or its series
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.RescheduleLessonRequest true "New start"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/reschedule [post]
func (h *LessonHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "reschedule"))
		return
	}
	result, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a lesson or the rest of its series
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CancelLessonRequest false "Cancellation"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	var req dto.CancelLessonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, invalidPayload(err, "cancellation"))
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
