package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort string
	LogLevel   slog.Level

	// OpenTelemetry settings
	TelemetryEnabled bool
	OTLPEndpoint     string
	ServiceName      string
	Environment      string

	// Storage settings
	StorageBackend string
	StorageDir     string
	StorageKey     string
	MySQLDSN       string
	PostgresURL    string
}

// Load returns configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getLogLevel("LOG_LEVEL", slog.LevelInfo),
		TelemetryEnabled: getBool("TELEMETRY_ENABLED", true),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:      getEnv("OTEL_SERVICE_NAME", "go-otel-todo"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile)),
		StorageDir:       getEnv("STORAGE_DIR", "data"),
		StorageKey:       getEnv("STORAGE_KEY", "todoTasks"),
		MySQLDSN:         getEnv("MYSQL_DSN", ""),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required for the %s backend", BackendFile)
		}
	case BackendMemory:
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the %s backend", BackendMySQL)
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getLogLevel(key string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv(key, defaultValue.String()))); err != nil {
		return defaultValue
	}
	return level
}
