package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/middleware"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

type availabilityService interface {
	GetAvailability(ctx context.Context, teacherID, weekStart string) (*models.WeeklyAvailability, bool, error)
	ReplaceAvailability(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) ([]models.AvailabilityRule, error)
	CheckSlot(ctx context.Context, teacherID string, start time.Time, durationMinutes int) (*models.SlotCheck, error)
}

// AvailabilityHandler serves weekly availability reads, rule replacement and slot probes.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Get godoc
// @Summary Weekly availability of a teacher
// @Tags Schedule
// @Produce json
// @Param teacher_id query string true "Teacher ID"
// @Param week_start query string false "First day of the week (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /schedule/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	week, cacheHit, err := h.service.GetAvailability(c.Request.Context(), c.Query("teacher_id"), c.Query("week_start"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, week, nil, middleware.ExtractMeta(c))
}

// Check godoc
// @Summary Check whether a slot could be booked
// @Tags Schedule
// @Produce json
// @Param teacher_id query string true "Teacher ID"
// @Param start query string true "Slot start, ISO-8601; no offset means the calendar timezone"
// @Param duration query int false "Duration in minutes"
// @Success 200 {object} response.Envelope
// @Router /schedule/availability/check [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	start, err := dto.ParseTimestamp(c.Query("start"))
	if err != nil {
		response.Error(c, appErrors.Invalid("start must be an ISO-8601 timestamp"))
		return
	}
	duration := 0
	if raw := c.Query("duration"); raw != "" {
		if duration, err = strconv.Atoi(raw); err != nil {
			response.Error(c, appErrors.Invalid("duration must be a number of minutes"))
			return
		}
	}
	check, err := h.service.CheckSlot(c.Request.Context(), c.Query("teacher_id"), start, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Replace godoc
// @Summary Replace a teacher's availability rules
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Availability rules"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers/{id}/availability [put]
func (h *AvailabilityHandler) Replace(c *gin.Context) {
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "availability"))
		return
	}
	rules, err := h.service.ReplaceAvailability(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}
