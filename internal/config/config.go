// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RabbitMQURL    string // empty disables job event publishing
	SessionSecret  string
	SessionTTL     time.Duration
	MaxSessions    int
	PollInterval   time.Duration
	MaxConcurrent  int
	AllowedOrigins string
	Environment    string // development, staging, production
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from environment variables and validates it.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		SessionSecret:  getEnv("SESSION_SECRET", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", time.Hour),
		MaxSessions:    getEnvInt("MAX_SESSIONS_PER_USER", 5),
		PollInterval:   getEnvDuration("JOB_POLL_INTERVAL", 5*time.Second),
		MaxConcurrent:  getEnvInt("MAX_CONCURRENT_JOBS", 5),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.SessionSecret == "" || c.SessionSecret == "change-this-in-production" {
			return fmt.Errorf("SESSION_SECRET must be set to a strong random value in production")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production (got %d)", len(c.SessionSecret))
		}
		if c.AllowedOrigins != "" {
			log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
		}
	} else if c.SessionSecret == "" {
		c.SessionSecret = "dev-secret-not-for-production"
		log.Println("Using default SESSION_SECRET for development")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS_PER_USER must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("Invalid duration for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}
