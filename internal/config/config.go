package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken        string
	GitHubClientID     string
	GitHubClientSecret string
	WebhookSecret      string
	WebhookURL         string // registered on the organization during seeding when set

	// Seeding
	ReferenceBranch string
	CommitPageSize  int // 0 leaves the API default (30)
	SeedConcurrency int

	// API Server
	APIPort string
	APIHost string

	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"

	// Export
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	pageSize, err := getEnvInt("COMMIT_PAGE_SIZE", 0)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("SEED_CONCURRENCY", 5)
	if err != nil {
		return nil, err
	}

	return &Config{
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		ReferenceBranch:    getEnv("REFERENCE_BRANCH", "main"),
		CommitPageSize:     pageSize,
		SeedConcurrency:    concurrency,
		APIPort:            getEnv("API_PORT", "3000"),
		APIHost:            getEnv("API_HOST", "localhost"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		StorageType:        getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "./mirror.db"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		APIEndpoint:        getEnv("API_ENDPOINT", "http://localhost:3000"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// OAuthEnabled reports whether the OAuth callback can exchange codes
func (c *Config) OAuthEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Validate validates the configuration used by the server and the seed command
func (c *Config) Validate() error {
	if c.ReferenceBranch == "" {
		return &ConfigError{Field: "REFERENCE_BRANCH", Message: "reference branch cannot be empty"}
	}
	if c.CommitPageSize < 0 || c.CommitPageSize > 100 {
		return &ConfigError{Field: "COMMIT_PAGE_SIZE", Message: "must be between 0 and 100"}
	}
	if c.SeedConcurrency < 1 {
		return &ConfigError{Field: "SEED_CONCURRENCY", Message: "must be at least 1"}
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be 'json' or 'console'"}
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return &ConfigError{Field: "GITHUB_CLIENT_SECRET", Message: "client id and secret must be set together"}
	}
	return nil
}

// ValidateExport validates the configuration used by the export command
func (c *Config) ValidateExport() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
