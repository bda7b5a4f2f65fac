package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-calendar-api/internal/models"
	"github.com/noah-isme/lesson-calendar-api/pkg/cache"
	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
	"github.com/noah-isme/lesson-calendar-api/pkg/jobs"
)

const invalidateJobType = "availability.invalidate"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService caches weekly availability. Failures never break the calling operation:
// reads fall through to the store and failed invalidations are retried in the background.
//
// Entries are keyed by a per-teacher generation. Readers take the generation before loading
// from the store; invalidation bumps it, so a week loaded before a commit is written under a
// key no later reader asks for.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	queue   *jobs.Queue
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// StartInvalidationWorker routes failed invalidations through a retrying queue.
func (s *CacheService) StartInvalidationWorker(ctx context.Context, cfg jobs.QueueConfig) {
	if !s.Enabled() {
		return
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	s.queue = jobs.NewQueue("cache-invalidation", func(ctx context.Context, job jobs.Job) error {
		return s.invalidate(ctx, job.Payload)
	}, cfg)
	s.queue.Start(ctx)
}

// StopInvalidationWorker stops the retry queue.
func (s *CacheService) StopInvalidationWorker() {
	if s != nil && s.queue != nil {
		s.queue.Stop()
	}
}

// Generation returns the teacher's current cache generation. ok is false when the cache
// cannot be used for this read.
func (s *CacheService) Generation(ctx context.Context, teacherID string) (int64, bool) {
	if !s.Enabled() {
		return 0, false
	}
	key := cache.AvailabilityGenerationKey(teacherID)
	generation, err := s.repo.Counter(ctx, key)
	if err != nil {
		s.logger.Warn("cache generation read failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	return generation, true
}

// GetAvailability loads a cached week into dest and reports a hit.
func (s *CacheService) GetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, dest *models.WeeklyAvailability) bool {
	if !s.Enabled() {
		return false
	}
	key := cache.AvailabilityKey(teacherID, generation, weekStart)
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// SetAvailability stores a week computed after reading generation.
func (s *CacheService) SetAvailability(ctx context.Context, teacherID string, generation int64, weekStart string, value *models.WeeklyAvailability) {
	if !s.Enabled() {
		return
	}
	key := cache.AvailabilityKey(teacherID, generation, weekStart)
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateTeacher moves the teacher to a new generation and drops the old weeks.
func (s *CacheService) InvalidateTeacher(ctx context.Context, teacherID string) {
	if !s.Enabled() {
		return
	}
	err := s.invalidate(ctx, teacherID)
	if err == nil {
		return
	}
	s.logger.Warn("cache invalidate failed", zap.String("teacher_id", teacherID), zap.Error(err))
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: invalidateJobType, Payload: teacherID, Attempt: 1}
	if qErr := s.queue.Enqueue(job); qErr != nil {
		s.logger.Error("cache invalidation not queued", zap.String("teacher_id", teacherID), zap.Error(qErr))
	}
}

func (s *CacheService) invalidate(ctx context.Context, teacherID string) error {
	if _, err := s.repo.Incr(ctx, cache.AvailabilityGenerationKey(teacherID)); err != nil {
		return err
	}
	return s.repo.DeleteByPattern(ctx, cache.TeacherAvailabilityPattern(teacherID))
}
