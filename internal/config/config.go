// Package config provides configuration management for the FareAround backend.
// It handles loading configuration from environment variables with sensible defaults
// and validates the configuration to ensure the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8000)
//   - LOG_LEVEL: Logging level (default: info)
//   - AFFILIATE_ID: Optional affiliate tracking ID
//   - DOMAIN: Optional domain name for affiliate tracking
//
// Amadeus API:
//   - AMADEUS_CLIENT_ID: OAuth2 client ID (required)
//   - AMADEUS_CLIENT_SECRET: OAuth2 client secret (required)
//   - AMADEUS_BASE_URL: API base URL (default: https://test.api.amadeus.com)
//
// Response Cache:
//   - CACHE_BACKEND: "local" or "redis" (default: local)
//   - CACHE_TTL: Entry time-to-live (default: 60s)
//   - CACHE_MAX_ENTRIES: Capacity bound for the local cache (default: 512)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./farearound.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL connection settings
//
// Email (SMTP):
//   - EMAIL_HOST, EMAIL_PORT, EMAIL_USER, EMAIL_PASSWORD: SMTP credentials
//   - EMAIL_FROM_NAME: Display name for the From header
//
// Price-Drop Alerts:
//   - ALERTS_ENABLED: Run the scheduled batch in-process (default: false)
//   - ALERTS_CRON: Cron expression for the batch (default: "0 */6 * * *")
//   - ALERTS_CURRENCY: Forced reporting currency (default: INR)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the FareAround backend.
// All string fields correspond to environment variables that can be set to
// override the default values.
type Config struct {
	// Application settings
	Port        string // Server port number
	LogLevel    string // Logging level (debug, info, warn, error)
	AffiliateID string // Affiliate tracking ID
	Domain      string // Domain for affiliate tracking

	// Amadeus API configuration
	AmadeusClientID     string // OAuth2 client ID
	AmadeusClientSecret string // OAuth2 client secret
	AmadeusBaseURL      string // API base URL (test or production)

	// Response cache configuration
	CacheBackend    string        // "local" or "redis"
	CacheTTL        time.Duration // Entry time-to-live
	CacheMaxEntries int           // Capacity bound for the local cache
	RedisAddress    string        // Redis server address (host:port)
	RedisPassword   string        // Redis authentication password
	RedisDB         string        // Redis database number (0-15)

	// Database configuration
	DatabaseType     string // Database type: "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Email configuration
	EmailHost     string // SMTP host
	EmailPort     string // SMTP port (465 implies implicit SSL)
	EmailUser     string // SMTP username (also the From address)
	EmailPassword string // SMTP password
	EmailFromName string // Display name for the From header

	// Alert batch configuration
	AlertsEnabled  bool   // Whether the in-process scheduler runs
	AlertsCron     string // Cron expression for the batch
	AlertsCurrency string // Forced reporting currency for comparisons
}

// Load creates a new Config instance with values loaded from environment variables.
// If an environment variable is not set, the corresponding default value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all required values are properly set and valid.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AffiliateID: getEnv("AFFILIATE_ID", ""),
		Domain:      getEnv("DOMAIN", ""),

		AmadeusClientID:     getEnv("AMADEUS_CLIENT_ID", ""),
		AmadeusClientSecret: getEnv("AMADEUS_CLIENT_SECRET", ""),
		AmadeusBaseURL:      getEnv("AMADEUS_BASE_URL", "https://test.api.amadeus.com"),

		CacheBackend:    getEnv("CACHE_BACKEND", "local"),
		CacheTTL:        getDurationEnv("CACHE_TTL", 60*time.Second),
		CacheMaxEntries: getIntEnv("CACHE_MAX_ENTRIES", 512),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnv("REDIS_DB", "0"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./farearound.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "farearound"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		EmailHost:     getEnv("EMAIL_HOST", ""),
		EmailPort:     getEnv("EMAIL_PORT", ""),
		EmailUser:     getEnv("EMAIL_USER", ""),
		EmailPassword: getEnv("EMAIL_PASSWORD", ""),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "FareAround"),

		AlertsEnabled:  getBoolEnv("ALERTS_ENABLED", false),
		AlertsCron:     getEnv("ALERTS_CRON", "0 */6 * * *"),
		AlertsCurrency: getEnv("ALERTS_CURRENCY", "INR"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all required
// fields are present and all values are valid.
//
// The application should call this method after loading configuration and
// before starting to ensure safe operation.
func (c *Config) Validate() error {
	if c.AmadeusClientID == "" {
		return fmt.Errorf("AMADEUS_CLIENT_ID environment variable is required")
	}
	if c.AmadeusClientSecret == "" {
		return fmt.Errorf("AMADEUS_CLIENT_SECRET environment variable is required")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.CacheBackend {
	case "local", "redis":
		// Valid cache backends
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'local' or 'redis'")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be at least 1")
	}

	if c.CacheBackend == "redis" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
		// Valid database types
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.AlertsCurrency == "" {
		return fmt.Errorf("ALERTS_CURRENCY must not be empty")
	}

	return nil
}

// SMTPConfigured reports whether all SMTP credentials required to send
// email are present.
func (c *Config) SMTPConfigured() bool {
	return c.EmailHost != "" && c.EmailPort != "" && c.EmailUser != "" && c.EmailPassword != ""
}
