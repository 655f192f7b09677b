// Package config loads fenixd's runtime configuration from the process
// environment, the same getEnv/getEnvInt idiom the source material's own
// main.go wires its flags with.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/openstack-archive/fenix/internal/session"
	"github.com/openstack-archive/fenix/internal/store"
)

// Config is fenixd's full runtime configuration.
type Config struct {
	Port string

	DB store.Config

	NatsURL      string
	NatsUser     string
	NatsPassword string

	ReplyURLBase string

	Workflow session.Config

	RateLimitEnabled bool
	RateLimitRPM     int

	AdminAPIKey string

	HousekeepingInterval time.Duration
	ShutdownTimeout      time.Duration
}

// Load reads Config from the environment, applying the same defaults the
// source material ships for local development.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("FENIX_PORT", "8080"),

		DB: store.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "fenix"),
			Password: getEnv("DB_PASSWORD", "fenix"),
			DBName:   getEnv("DB_NAME", "fenix"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},

		NatsURL:      getEnv("NATS_URL", ""),
		NatsUser:     getEnv("NATS_USER", ""),
		NatsPassword: getEnv("NATS_PASSWORD", ""),

		ReplyURLBase: getEnv("FENIX_REPLY_URL_BASE", "http://localhost:8080"),

		Workflow: session.Config{
			ProjectMaintenanceReply: getEnvDuration("PROJECT_MAINTENANCE_REPLY", 10*time.Minute),
			ProjectScaleInReply:     getEnvDuration("PROJECT_SCALE_IN_REPLY", 10*time.Minute),
			WaitProjectReply:        getEnvDuration("WAIT_PROJECT_REPLY", 15*time.Minute),
		},

		RateLimitEnabled: getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRPM:     getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),

		AdminAPIKey: os.Getenv("FENIX_ADMIN_API_KEY"),

		HousekeepingInterval: getEnvDuration("HOUSEKEEPING_INTERVAL", time.Hour),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("FENIX_ADMIN_API_KEY must be set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
