// Package config provides centralized configuration for the synthesis backend.
// Values come from the environment, optionally seeded by a .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for local corrections.
const (
	BackendSQLite = "sqlite"
	BackendLibSQL = "libsql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	// Server Configuration
	Port               string
	GinMode            string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	CORSOrigins        []string
	JWTSecret          string

	// Declarations API
	APIURL       string
	APIToken     string
	APITimeout   time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Synthesis
	MinDataDate          string
	LoadAbandonTTL       time.Duration
	LoadRetentionTTL     time.Duration
	JanitorInterval      time.Duration
	SSEHeartbeatInterval time.Duration

	// Correction store
	KVBackend          string
	SQLitePath         string
	LibSQLURL          string
	LibSQLAuthToken    string
	RedisURL           string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	SlowQueryThreshold time.Duration

	// Logging
	LogLevel     string
	LogJSON      bool
	LogToFile    bool
	LogDirectory string
}

// Load reads .env (when present) then the environment. Variables already set
// in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			log.Printf("Loaded configuration overrides from %s", f)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:               getEnvString("PORT", "8080"),
		GinMode:            getEnvString("GIN_MODE", "debug"),
		ServerReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 0),
		ServerIdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		JWTSecret:          os.Getenv("JWT_SECRET"),

		APIURL:       getEnvString("API_URL", "http://localhost:3001"),
		APIToken:     os.Getenv("API_TOKEN"),
		APITimeout:   getEnvDuration("API_TIMEOUT", 60*time.Second),
		APIRateLimit: getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst: getEnvInt("API_RATE_BURST", 12),

		MinDataDate:          getEnvString("MIN_DATA_DATE", "2022-01-01"),
		LoadAbandonTTL:       getEnvDuration("LOAD_ABANDON_TTL", 10*time.Minute),
		LoadRetentionTTL:     getEnvDuration("LOAD_RETENTION_TTL", 2*time.Minute),
		JanitorInterval:      getEnvDuration("LOAD_JANITOR_INTERVAL", 30*time.Second),
		SSEHeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),

		KVBackend:          strings.ToLower(getEnvString("KV_BACKEND", BackendSQLite)),
		SQLitePath:         getEnvString("SQLITE_PATH", "champollion.db"),
		LibSQLURL:          os.Getenv("LIBSQL_URL"),
		LibSQLAuthToken:    os.Getenv("LIBSQL_AUTH_TOKEN"),
		RedisURL:           os.Getenv("REDIS_URL"),
		DBMaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 3),
		DBConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		SlowQueryThreshold: getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond),

		LogLevel:     getEnvString("LOG_LEVEL", "info"),
		LogJSON:      getEnvBool("LOG_JSON", true),
		LogToFile:    getEnvBool("LOG_TO_FILE", false),
		LogDirectory: getEnvString("LOG_DIRECTORY", "logs"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := time.Parse("2006-01-02", c.MinDataDate); err != nil {
		return fmt.Errorf("config: MIN_DATA_DATE %q is not a date: %w", c.MinDataDate, err)
	}
	switch c.KVBackend {
	case BackendSQLite, BackendMemory:
	case BackendLibSQL:
		if c.LibSQLURL == "" {
			return errors.New("config: LIBSQL_URL is required for the libsql backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown KV_BACKEND %q", c.KVBackend)
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("config: API_RATE_LIMIT must be positive, got %v", c.APIRateLimit)
	}
	if c.APIRateBurst < 1 {
		return fmt.Errorf("config: API_RATE_BURST must be at least 1, got %d", c.APIRateBurst)
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"LOAD_JANITOR_INTERVAL", c.JanitorInterval},
		{"LOAD_ABANDON_TTL", c.LoadAbandonTTL},
		{"LOAD_RETENTION_TTL", c.LoadRetentionTTL},
	} {
		if d.value <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", d.key, d.value)
		}
	}
	return nil
}

// LibSQLDSN returns the libsql connection string with its auth token.
func (c *Config) LibSQLDSN() string {
	if c.LibSQLAuthToken == "" {
		return c.LibSQLURL
	}
	return fmt.Sprintf("%s?authToken=%s", c.LibSQLURL, c.LibSQLAuthToken)
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	log.Printf("Config override: %s=%s", key, valStr)
	return out
}
