package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
	"github.com/noah-isme/lesson-calendar-api/pkg/response"
)

// ContextViewerKey is the gin context key storing verified viewer claims.
const ContextViewerKey = "currentViewer"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.ViewerClaims, error)
}

// OptionalViewer attaches viewer claims when a bearer token is sent. Requests without a token
// pass through so the identity layer can forward the viewer as query parameters; a token that
// is present but invalid is rejected.
func OptionalViewer(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if tokens == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token verification is not configured"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextViewerKey, claims)
		c.Next()
	}
}

// ViewerClaims returns the verified claims attached by OptionalViewer, if any.
func ViewerClaims(c *gin.Context) *models.ViewerClaims {
	value, exists := c.Get(ContextViewerKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ViewerClaims)
	if !ok {
		return nil
	}
	return claims
}
