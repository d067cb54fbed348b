package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Evaluation engine
	Engine EngineConfig

	// Job queue
	Queue QueueConfig

	// Fundamentals ingest
	Ingest IngestConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration for the signal read cache.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// EngineConfig holds formula evaluation settings.
type EngineConfig struct {
	// QuarterWindow is the number of most recent quarters exposed to
	// excel-style formulas.
	QuarterWindow int
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	// DefaultBatchSize is used when a job does not specify its own.
	DefaultBatchSize int
	// BatchPause bounds downstream load between batches.
	BatchPause time.Duration
}

// IngestConfig holds quarterly fundamentals ingest settings.
type IngestConfig struct {
	BaseURL string
	// Schedule is a cron expression (with seconds) for the ingest poller.
	Schedule string
	// RatePerSecond caps outbound requests to the fundamentals source.
	RatePerSecond float64
	Enabled       bool
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Engine: EngineConfig{
			QuarterWindow: getEnvAsInt("ENGINE_QUARTER_WINDOW", 12),
		},

		Queue: QueueConfig{
			DefaultBatchSize: getEnvAsInt("QUEUE_BATCH_SIZE", 50),
			BatchPause:       getEnvAsDuration("QUEUE_BATCH_PAUSE", "100ms"),
		},

		Ingest: IngestConfig{
			BaseURL:       getEnv("INGEST_BASE_URL", ""),
			Schedule:      getEnv("INGEST_SCHEDULE", "0 0 6 * * *"),
			RatePerSecond: getEnvAsFloat("INGEST_RATE_PER_SECOND", 2.0),
			Enabled:       getEnvAsBool("INGEST_ENABLED", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Engine.QuarterWindow < 1 {
		return fmt.Errorf("ENGINE_QUARTER_WINDOW must be positive")
	}

	if c.Queue.DefaultBatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive")
	}

	if c.Ingest.Enabled && c.Ingest.BaseURL == "" {
		return fmt.Errorf("INGEST_BASE_URL is required when ingest is enabled")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
