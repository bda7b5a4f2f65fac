package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Calendar CalendarConfig
	Cache    CacheConfig
	Metrics  MetricsConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify identity tokens issued upstream.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CalendarConfig controls how wall-clock availability maps onto absolute lesson times.
type CalendarConfig struct {
	Timezone             string
	Location             *time.Location
	DefaultLessonMinutes int
	MaxLessonMinutes     int
	MaxSeriesOccurrences int
	UpcomingDefaultLimit int
	UpcomingMaxLimit     int
}

// CacheConfig toggles the weekly availability cache.
type CacheConfig struct {
	Enabled             bool
	AvailabilityTTL     time.Duration
	InvalidationWorkers int
	InvalidationRetries int
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// ExportsConfig configures calendar exports.
type ExportsConfig struct {
	Title     string
	ProductID string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	tz := v.GetString("CALENDAR_TIMEZONE")
	cfg.Calendar = CalendarConfig{
		Timezone:             tz,
		Location:             loadLocation(tz),
		DefaultLessonMinutes: positiveOr(v.GetInt("CALENDAR_DEFAULT_LESSON_MINUTES"), 60),
		MaxLessonMinutes:     positiveOr(v.GetInt("CALENDAR_MAX_LESSON_MINUTES"), 240),
		MaxSeriesOccurrences: positiveOr(v.GetInt("CALENDAR_MAX_SERIES_OCCURRENCES"), 52),
		UpcomingDefaultLimit: positiveOr(v.GetInt("CALENDAR_UPCOMING_DEFAULT_LIMIT"), 5),
		UpcomingMaxLimit:     positiveOr(v.GetInt("CALENDAR_UPCOMING_MAX_LIMIT"), 20),
	}

	cfg.Cache = CacheConfig{
		Enabled:             v.GetBool("ENABLE_AVAILABILITY_CACHE"),
		AvailabilityTTL:     parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 5*time.Minute),
		InvalidationWorkers: positiveOr(v.GetInt("CACHE_INVALIDATION_WORKERS"), 1),
		InvalidationRetries: positiveOr(v.GetInt("CACHE_INVALIDATION_RETRIES"), 3),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Exports = ExportsConfig{
		Title:     v.GetString("EXPORT_TITLE"),
		ProductID: v.GetString("EXPORT_ICS_PRODUCT_ID"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lesson_calendar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CALENDAR_TIMEZONE", "UTC")
	v.SetDefault("CALENDAR_DEFAULT_LESSON_MINUTES", 60)
	v.SetDefault("CALENDAR_MAX_LESSON_MINUTES", 240)
	v.SetDefault("CALENDAR_MAX_SERIES_OCCURRENCES", 52)
	v.SetDefault("CALENDAR_UPCOMING_DEFAULT_LIMIT", 5)
	v.SetDefault("CALENDAR_UPCOMING_MAX_LIMIT", 20)

	v.SetDefault("ENABLE_AVAILABILITY_CACHE", false)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "5m")
	v.SetDefault("CACHE_INVALIDATION_WORKERS", 1)
	v.SetDefault("CACHE_INVALIDATION_RETRIES", 3)

	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("EXPORT_TITLE", "Lesson calendar")
	v.SetDefault("EXPORT_ICS_PRODUCT_ID", "-//lesson-calendar-api//EN")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
