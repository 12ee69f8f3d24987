package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Graph      GraphConfig
	Encryption EncryptionConfig
	Sync       SyncConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GraphConfig holds Microsoft Graph application credentials
type GraphConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	BaseURL      string
	Instance     string
	ProxyURL     string // optional SOCKS5 proxy for outbound Graph calls
	HTTPTimeout  time.Duration
	// Requests per second against the Graph API, client side.
	RateLimit float64
}

// EncryptionConfig holds the secret used for token encryption at rest
type EncryptionConfig struct {
	Secret string
}

// SyncConfig holds mailbox synchronization knobs
type SyncConfig struct {
	DefaultIntervalMinutes int
	SchedulerCheckInterval time.Duration
	SchedulerStartupDelay  time.Duration
	FullSyncDefaultCount   int
	FullSyncMaxCount       int
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "mailmirror"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailmirror.db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Graph: GraphConfig{
			ClientID:     getEnv("GRAPH_CLIENT_ID", ""),
			ClientSecret: getEnv("GRAPH_CLIENT_SECRET", ""),
			TenantID:     getEnv("GRAPH_TENANT_ID", ""),
			RedirectURI:  getEnv("GRAPH_REDIRECT_URI", "http://localhost:8080/api/bindings/callback"),
			BaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			Instance:     getEnv("GRAPH_INSTANCE", "https://login.microsoftonline.com"),
			ProxyURL:     getEnv("GRAPH_PROXY_URL", ""),
			HTTPTimeout:  time.Duration(getEnvAsInt("GRAPH_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
			RateLimit:    getEnvAsFloat("GRAPH_RATE_LIMIT", 10),
		},
		Encryption: EncryptionConfig{
			Secret: getEnv("TOKEN_ENCRYPTION_SECRET", ""),
		},
		Sync: SyncConfig{
			DefaultIntervalMinutes: getEnvAsInt("SYNC_DEFAULT_INTERVAL_MINUTES", 15),
			SchedulerCheckInterval: time.Duration(getEnvAsInt("SYNC_CHECK_INTERVAL_SECONDS", 300)) * time.Second,
			SchedulerStartupDelay:  time.Duration(getEnvAsInt("SYNC_STARTUP_DELAY_SECONDS", 30)) * time.Second,
			FullSyncDefaultCount:   getEnvAsInt("SYNC_FULL_DEFAULT_COUNT", 500),
			FullSyncMaxCount:       getEnvAsInt("SYNC_FULL_MAX_COUNT", 2000),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// ServerAddress returns the full server address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
