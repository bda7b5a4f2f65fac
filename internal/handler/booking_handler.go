package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, req dto.BookLessonRequest) (*models.BookingResult, error)
}

// BookingHandler creates lessons.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// Book godoc
// @Summary Book a lesson or a weekly series
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.BookLessonRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedule/book [post]
func (h *BookingHandler) Book(c *gin.Context) {
	var req dto.BookLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "booking"))
		return
	}
	result, err := h.service.Book(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
