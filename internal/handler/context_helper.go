package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/dto"
	"github.com/noah-isme/lesson-calendar-api/internal/middleware"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// viewerFromRequest prefers verified token claims. Without a token the identity layer
// forwards the viewer as query parameters. Filters a token leaves empty are taken from the
// query so admins can pick a calendar and mismatches surface as permission errors.
func viewerFromRequest(c *gin.Context, q dto.CalendarQuery) models.Viewer {
	if claims := middleware.ViewerClaims(c); claims != nil {
		viewer := claims.Viewer()
		if viewer.TeacherID == "" {
			viewer.TeacherID = strings.TrimSpace(q.TeacherID)
		}
		if viewer.StudentID == "" {
			viewer.StudentID = strings.TrimSpace(q.StudentID)
		}
		return viewer
	}
	return models.Viewer{
		Role:      models.Role(strings.ToLower(strings.TrimSpace(q.Role))),
		UserID:    strings.TrimSpace(q.UserID),
		TeacherID: strings.TrimSpace(q.TeacherID),
		StudentID: strings.TrimSpace(q.StudentID),
	}
}

func invalidPayload(err error, what string) error {
	return appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, http.StatusBadRequest, "invalid "+what+" payload")
}

// bindOptionalJSON binds a JSON body when one is sent; an empty body keeps the zero value.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
