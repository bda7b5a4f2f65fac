package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/lesson-calendar-api/pkg/config"
)

const keyPrefix = "calendar"

// NewRedis returns a configured Redis client after a successful ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}

// AvailabilityKey names the cached weekly availability of a teacher at a cache generation.
func AvailabilityKey(teacherID string, generation int64, weekStart string) string {
	return fmt.Sprintf("%s:availability:%s:%d:%s", keyPrefix, teacherID, generation, weekStart)
}

// TeacherAvailabilityPattern matches every cached week of a teacher, across generations.
func TeacherAvailabilityPattern(teacherID string) string {
	return fmt.Sprintf("%s:availability:%s:*", keyPrefix, teacherID)
}

// AvailabilityGenerationKey names the counter bumped on every invalidation of a teacher.
// It sits outside TeacherAvailabilityPattern so pattern deletes never reset it.
func AvailabilityGenerationKey(teacherID string) string {
	return fmt.Sprintf("%s:availability-generation:%s", keyPrefix, teacherID)
}
