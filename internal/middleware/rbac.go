package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

// RoleSelf allows a teacher whose token subject equals the :id route parameter.
const RoleSelf models.Role = "SELF"

// RequireRoles enforces role-based access control for routes. It needs OptionalViewer upstream.
func RequireRoles(allowed ...models.Role) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.Role]struct{}, len(allowed))
	for _, role := range allowed {
		if role == RoleSelf {
			allowSelf = true
			continue
		}
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := ViewerClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf && claims.Role == models.RoleTeacher {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.Viewer().UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrPermissionDenied)
		c.Abort()
	}
}
