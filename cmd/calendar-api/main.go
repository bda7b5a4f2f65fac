package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-calendar-api/api/swagger"
	"github.com/noah-isme/lesson-calendar-api/internal/handler"
	"github.com/noah-isme/lesson-calendar-api/internal/repository"
	"github.com/noah-isme/lesson-calendar-api/internal/router"
	"github.com/noah-isme/lesson-calendar-api/internal/service"
	"github.com/noah-isme/lesson-calendar-api/pkg/cache"
	"github.com/noah-isme/lesson-calendar-api/pkg/config"
	"github.com/noah-isme/lesson-calendar-api/pkg/database"
	"github.com/noah-isme/lesson-calendar-api/pkg/jobs"
	"github.com/noah-isme/lesson-calendar-api/pkg/logger"
)

// @title Lesson Calendar API
// @version 1.0.0
// @description Teacher availability, lesson booking and role-scoped calendars
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	teachers := repository.NewTeacherRepository(db)
	students := repository.NewStudentRepository(db)
	parents := repository.NewParentRepository(db)
	rules := repository.NewAvailabilityRepository(db)
	lessons := repository.NewLessonRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)
	defer cacheRepo.Close() //nolint:errcheck
	txManager := repository.NewTxManager(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AvailabilityTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	cacheSvc.StartInvalidationWorker(ctx, jobs.QueueConfig{
		Workers:    cfg.Cache.InvalidationWorkers,
		MaxRetries: cfg.Cache.InvalidationRetries,
		RetryDelay: time.Second,
		Logger:     logr,
	})
	defer cacheSvc.StopInvalidationWorker()

	validate := validator.New()
	locks := service.NewTeacherLocks()
	availabilitySvc := service.NewAvailabilityService(teachers, rules, lessons, txManager, locks, cacheSvc, metrics, cfg.Calendar, validate, logr)
	bookingSvc := service.NewBookingService(teachers, students, rules, lessons, txManager, locks, cacheSvc, metrics, cfg.Calendar, validate, logr)
	lessonSvc := service.NewLessonService(teachers, rules, lessons, txManager, locks, cacheSvc, metrics, cfg.Calendar, validate, logr)
	calendarSvc := service.NewCalendarService(lessons, students, cfg.Calendar, cfg.Exports, logr)
	directorySvc := service.NewDirectoryService(teachers, students, parents, validate, logr)

	var tokens *service.TokenService
	if cfg.JWT.Secret != "" {
		tokens = service.NewTokenService(cfg.JWT)
	} else {
		logr.Warn("JWT_SECRET not set, bearer tokens are rejected and admin routes are closed")
	}

	opts := router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableMetrics:  metrics != nil,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
	}
	if tokens != nil {
		opts.Tokens = tokens
	}
	if metrics != nil {
		opts.Observer = metrics
	}

	engine := router.New(router.Handlers{
		Availability: handler.NewAvailabilityHandler(availabilitySvc),
		Booking:      handler.NewBookingHandler(bookingSvc),
		Lessons:      handler.NewLessonHandler(lessonSvc),
		Calendar:     handler.NewCalendarHandler(calendarSvc),
		Directory:    handler.NewDirectoryHandler(directorySvc),
		Metrics:      handler.NewMetricsHandler(metrics, txManager, logr),
	}, opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
