package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 60, cfg.Calendar.DefaultLessonMinutes)
	assert.Equal(t, 240, cfg.Calendar.MaxLessonMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AvailabilityTTL)
	require.NotNil(t, cfg.Calendar.Location)
	assert.Equal(t, "UTC", cfg.Calendar.Location.String())
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CALENDAR_TIMEZONE", "Europe/Moscow")
	v.Set("CALENDAR_DEFAULT_LESSON_MINUTES", 45)
	v.Set("AVAILABILITY_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, "Europe/Moscow", cfg.Calendar.Location.String())
	assert.Equal(t, 45, cfg.Calendar.DefaultLessonMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AvailabilityTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, loadLocation("Mars/Olympus"))
	assert.Equal(t, time.UTC, loadLocation(""))
}
