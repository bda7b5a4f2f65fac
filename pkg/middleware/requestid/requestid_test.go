package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*seen = Value(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddlewareKeepsWellFormedID(t *testing.T) {
	var seen string
	r := newRouter(&seen)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "abc-123-def")

	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123-def", seen)
	assert.Equal(t, "abc-123-def", w.Header().Get(HeaderKey))
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	var seen string
	r := newRouter(&seen)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "<script>")

	r.ServeHTTP(w, req)

	assert.NotEqual(t, "<script>", seen)
	assert.Len(t, seen, 36)
}
