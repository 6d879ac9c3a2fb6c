package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment         string
	ServerPort          int
	LogLevel            string
	RedisURL            string // empty means in-process cache only
	CORSAllowedOrigins  []string
	JWTSecret           string
	TokenTTL            time.Duration
	CacheTTL            time.Duration // derived-aggregate TTL; minutes, not seconds
	LockTimeout         time.Duration // per-user write lock wait bound
	MaxEntryDuration    time.Duration // reaper force-stops entries past this
	ReaperInterval      time.Duration
	StartSkewTolerance  time.Duration // how far a client start time may deviate from server now
	RateLimitPerMinute  int
	Database            Database
}

// Database holds Postgres connection settings
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	cacheTTLMin, err := strconv.Atoi(getEnv("CACHE_TTL_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL_MINUTES: %w", err)
	}

	lockTimeoutSec, err := strconv.Atoi(getEnv("LOCK_TIMEOUT_SECONDS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT_SECONDS: %w", err)
	}

	maxEntryHours, err := strconv.Atoi(getEnv("MAX_ENTRY_DURATION_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_ENTRY_DURATION_HOURS: %w", err)
	}

	reaperIntervalMin, err := strconv.Atoi(getEnv("REAPER_INTERVAL_MINUTES", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid REAPER_INTERVAL_MINUTES: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	return &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         port,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RedisURL:           os.Getenv("REDIS_URL"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           15 * time.Minute,
		CacheTTL:           time.Duration(cacheTTLMin) * time.Minute,
		LockTimeout:        time.Duration(lockTimeoutSec) * time.Second,
		MaxEntryDuration:   time.Duration(maxEntryHours) * time.Hour,
		ReaperInterval:     time.Duration(reaperIntervalMin) * time.Minute,
		StartSkewTolerance: 5 * time.Minute,
		RateLimitPerMinute: rateLimit,
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "timetrack"),
			Password: getEnv("DB_PASSWORD", "dev"),
			Name:     getEnv("DB_NAME", "timetrack"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
