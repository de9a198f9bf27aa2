// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/database"
)

// Supported storage backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

// Config holds every setting the server needs.
type Config struct {
	Port  string
	Store string

	Postgres   database.Config
	SQLitePath string
	MongoURI   string
	MongoDB    string

	SessionSecret string
	SessionTTL    time.Duration
	AdminPassword string

	AMQPURL   string
	RidesFile string

	LogLevel  string
	LogFormat string
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then builds a Config from the
// environment. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "8h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Store:         strings.ToLower(getEnv("STORE", StorePostgres)),
		Postgres:      database.ConfigFromEnv(),
		SQLitePath:    getEnv("SQLITE_PATH", "carnival.db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:       getEnv("MONGO_DB", "carnival"),
		SessionSecret: getEnv("SESSION_SECRET", "carnival_secret_key_2024"),
		SessionTTL:    ttl,
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		RidesFile:     os.Getenv("RIDES_FILE"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("unknown store %q (want postgres, sqlite or mongo)", c.Store)
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		return errors.New("SQLITE_PATH is required for the sqlite store")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
