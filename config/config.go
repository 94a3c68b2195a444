package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Provider modes
const (
	ProviderStatic = "static"
	ProviderHTTP   = "http"
)

// Config holds application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Forecast ForecastConfig
	Provider ProviderConfig
	API      APIConfig
	Log      LogConfig
	Refresh  RefreshConfig
	Webhooks WebhookConfig
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver     string // postgres, sqlite or memory
	Host       string
	Port       int
	Name       string
	User       string
	Password   string
	SQLitePath string
}

// RedisConfig holds the cache / realtime relay connection
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Channel  string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// EngineConfig holds prediction engine settings
type EngineConfig struct {
	TimeFrame          string
	Concurrency        int
	RequireModel       bool
	MaxRecommendations int
	CacheTTL           time.Duration
	ModelsFile         string
}

// ForecastConfig holds forecast aggregation parameters
type ForecastConfig struct {
	MonthlyConversionGrowth float64
	ConversionCap           float64 // Percent
	DefaultConversionRate   float64 // Percent
}

// ProviderConfig configures the factor provider and its guard
type ProviderConfig struct {
	Mode            string // static or http
	FixturesFile    string
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RateLimit       float64 // Requests per second, 0 disables limiting
	Burst           int
	BreakerFailures int
	BreakerOpenFor  time.Duration
	BreakerHalfOpen int
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port            int
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // text or json
}

// RefreshConfig controls the background refresher and trend sweeper
type RefreshConfig struct {
	Enabled        bool
	Interval       time.Duration
	SweepInterval  time.Duration
	TrendRetention time.Duration
}

// WebhookConfig controls webhook alerts
type WebhookConfig struct {
	Enabled          bool
	DeclineThreshold float64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:     getEnvOrDefault("DB_DRIVER", "sqlite"),
			Host:       getEnvOrDefault("DB_HOST", "localhost"),
			Port:       getEnvInt("DB_PORT", 5432),
			Name:       getEnvOrDefault("DB_NAME", "localsearch"),
			User:       getEnvOrDefault("DB_USER", "localsearch"),
			Password:   getEnvOrDefault("DB_PASSWORD", ""),
			SQLitePath: getEnvOrDefault("DB_SQLITE_PATH", "localsearch.db"),
		},

		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnvOrDefault("REDIS_EVENTS_CHANNEL", "localsearch:events"),
		},

		Engine: EngineConfig{
			TimeFrame:          getEnvOrDefault("ENGINE_TIME_FRAME", "3 months"),
			Concurrency:        getEnvInt("ENGINE_CONCURRENCY", 8),
			RequireModel:       getEnvBool("ENGINE_REQUIRE_MODEL", false),
			MaxRecommendations: getEnvInt("ENGINE_MAX_RECOMMENDATIONS", 3),
			CacheTTL:           getEnvDuration("ENGINE_CACHE_TTL", 5*time.Minute),
			ModelsFile:         getEnvOrDefault("MODELS_FILE", ""),
		},

		Forecast: ForecastConfig{
			MonthlyConversionGrowth: getEnvFloat("FORECAST_MONTHLY_CONVERSION_GROWTH", 0.02),
			ConversionCap:           getEnvFloat("FORECAST_CONVERSION_CAP", 5.0),
			DefaultConversionRate:   getEnvFloat("FORECAST_DEFAULT_CONVERSION_RATE", 2.0),
		},

		Provider: ProviderConfig{
			Mode:            getEnvOrDefault("PROVIDER_MODE", ProviderStatic),
			FixturesFile:    getEnvOrDefault("PROVIDER_FIXTURES_FILE", "fixtures.yaml"),
			BaseURL:         getEnvOrDefault("PROVIDER_BASE_URL", ""),
			APIKey:          getEnvOrDefault("PROVIDER_API_KEY", ""),
			Timeout:         getEnvDuration("PROVIDER_TIMEOUT", 2*time.Second),
			RateLimit:       getEnvFloat("PROVIDER_RATE_LIMIT", 50),
			Burst:           getEnvInt("PROVIDER_BURST", 20),
			BreakerFailures: getEnvInt("PROVIDER_BREAKER_FAILURES", 5),
			BreakerOpenFor:  getEnvDuration("PROVIDER_BREAKER_OPEN_FOR", 30*time.Second),
			BreakerHalfOpen: getEnvInt("PROVIDER_BREAKER_HALF_OPEN", 2),
		},

		API: APIConfig{
			Port:            getEnvInt("API_PORT", 8080),
			ReadTimeout:     getEnvDuration("API_READ_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
		},

		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},

		Refresh: RefreshConfig{
			Enabled:        getEnvBool("REFRESH_ENABLED", true),
			Interval:       getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),
			SweepInterval:  getEnvDuration("TREND_SWEEP_INTERVAL", time.Hour),
			TrendRetention: getEnvDuration("TREND_RETENTION", 30*24*time.Hour),
		},

		Webhooks: WebhookConfig{
			Enabled:          getEnvBool("WEBHOOKS_ENABLED", false),
			DeclineThreshold: getEnvFloat("WEBHOOK_DECLINE_THRESHOLD", 0.35),
		},
	}
}

// Validate rejects settings the application cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres, sqlite or memory, got %q", c.Database.Driver)
	}
	switch c.Provider.Mode {
	case ProviderStatic:
		if c.Provider.FixturesFile == "" {
			return fmt.Errorf("PROVIDER_FIXTURES_FILE is required for the static provider")
		}
	case ProviderHTTP:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("PROVIDER_BASE_URL is required for the http provider")
		}
	default:
		return fmt.Errorf("PROVIDER_MODE must be static or http, got %q", c.Provider.Mode)
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("ENGINE_CONCURRENCY must be positive, got %d", c.Engine.Concurrency)
	}
	if c.Forecast.ConversionCap <= 0 {
		return fmt.Errorf("FORECAST_CONVERSION_CAP must be positive, got %.2f", c.Forecast.ConversionCap)
	}
	if c.Refresh.Enabled && (c.Refresh.Interval <= 0 || c.Refresh.SweepInterval <= 0) {
		return fmt.Errorf("REFRESH_INTERVAL and TREND_SWEEP_INTERVAL must be positive")
	}
	if c.Webhooks.DeclineThreshold < 0 || c.Webhooks.DeclineThreshold > 1 {
		return fmt.Errorf("WEBHOOK_DECLINE_THRESHOLD must be in [0,1], got %.2f", c.Webhooks.DeclineThreshold)
	}
	return nil
}

// NewLogger builds the root logger from the log settings
func NewLogger(cfg LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetOutput(os.Stdout)
	return logger
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvBool accepts the strconv.ParseBool spellings
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration parses Go durations such as "90s" or "6h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
