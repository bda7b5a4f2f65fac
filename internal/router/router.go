package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/handler"
	"github.com/noah-isme/lesson-calendar-api/internal/middleware"
	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-calendar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-calendar-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler the API mounts.
type Handlers struct {
	Availability *handler.AvailabilityHandler
	Booking      *handler.BookingHandler
	Lessons      *handler.LessonHandler
	Calendar     *handler.CalendarHandler
	Directory    *handler.DirectoryHandler
	Metrics      *handler.MetricsHandler
}

// Options carries the cross-cutting pieces of the router.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableMetrics  bool
	EnableDocs     bool
	Tokens         middleware.TokenValidator
	Observer       middleware.RequestObserver
	Logger         *zap.Logger
}

// New builds the gin engine with middleware and routes.
func New(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	if opts.Observer != nil {
		r.Use(middleware.Metrics(opts.Observer))
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if opts.EnableMetrics {
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.Use(middleware.OptionalViewer(opts.Tokens))

	schedule := api.Group("/schedule")
	schedule.GET("/availability", h.Availability.Get)
	schedule.GET("/availability/check", h.Availability.Check)
	schedule.POST("/book", h.Booking.Book)

	api.PUT("/teachers/:id/availability", middleware.RequireRoles(models.RoleAdmin, middleware.RoleSelf), h.Availability.Replace)

	lessons := api.Group("/lessons")
	lessons.POST("/:id/reschedule", h.Lessons.Reschedule)
	lessons.POST("/:id/cancel", h.Lessons.Cancel)

	calendar := api.Group("/calendar")
	calendar.GET("/lessons", h.Calendar.Lessons)
	calendar.GET("/upcoming", h.Calendar.Upcoming)
	calendar.GET("/stats", h.Calendar.Stats)
	calendar.GET("/export", h.Calendar.Export)

	admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/teachers", h.Directory.ListTeachers)
	admin.POST("/teachers", h.Directory.CreateTeacher)
	admin.GET("/students", h.Directory.ListStudents)
	admin.POST("/students", h.Directory.CreateStudent)
	admin.GET("/parents", h.Directory.ListParents)
	admin.POST("/parents", h.Directory.CreateParent)

	return r
}
