package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/database"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Event bus configuration
	EventBusURL   string `mapstructure:"EVENT_BUS_URL"`
	EventBusToken string `mapstructure:"EVENT_BUS_TOKEN"`

	// Email provider configuration
	ResendAPIKey  string `mapstructure:"RESEND_API_KEY"`
	ResendBaseURL string `mapstructure:"RESEND_BASE_URL"`
	EmailFrom     string `mapstructure:"EMAIL_FROM"`

	// NATS configuration
	NATSServers string `mapstructure:"NATS_SERVERS"` // NATS server addresses (comma-separated), empty disables NATS

	// Admin API configuration
	AdminAddr  string `mapstructure:"ADMIN_ADDR"`
	AdminToken string `mapstructure:"ADMIN_TOKEN"`

	// Digest pipeline configuration
	DefaultLookbackHours int    `mapstructure:"DEFAULT_LOOKBACK_HOURS"` // Lookback window for a digest's first run
	HTTPTimeout          string `mapstructure:"HTTP_TIMEOUT"`           // Timeout for event bus and provider calls

	// Snapshot archive configuration (MinIO / S3)
	SnapshotEndpoint  string `mapstructure:"SNAPSHOT_ENDPOINT"`
	SnapshotAccessKey string `mapstructure:"SNAPSHOT_ACCESS_KEY"`
	SnapshotSecretKey string `mapstructure:"SNAPSHOT_SECRET_KEY"`
	SnapshotBucket    string `mapstructure:"SNAPSHOT_BUCKET"`
	SnapshotRegion    string `mapstructure:"SNAPSHOT_REGION"`
	SnapshotUseSSL    bool   `mapstructure:"SNAPSHOT_USE_SSL"`

	// OpenTelemetry configuration
	OTelEnabled              bool   `mapstructure:"OTEL_ENABLED"`
	OTelServiceName          string `mapstructure:"OTEL_SERVICE_NAME"`
	OTelExporterType         string `mapstructure:"OTEL_EXPORTER_TYPE"` // "console", "otlp" or "none"
	OTelOTLPEndpoint         string `mapstructure:"OTEL_OTLP_ENDPOINT"`
	OTelExportIntervalMillis int    `mapstructure:"OTEL_EXPORT_INTERVAL_MILLIS"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"` // "text" or "json"

	// Environment
	Environment string `mapstructure:"ENVIRONMENT"` // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			// In test environment, use a default test config instead of panicking
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// Load reads configuration without touching the global instance
func Load() (*Config, error) {
	return load()
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// GetHTTPTimeout parses HTTPTimeout, falling back to 30s when unset or invalid
func (c *Config) GetHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetLookback returns the first-run lookback window
func (c *Config) GetLookback() time.Duration {
	if c.DefaultLookbackHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DefaultLookbackHours) * time.Hour
}

// SnapshotArchiveEnabled reports whether run snapshots should be archived to object storage
func (c *Config) SnapshotArchiveEnabled() bool {
	return c.SnapshotEndpoint != "" && c.SnapshotBucket != ""
}

// NATSEnabled reports whether domain events should be published to NATS
func (c *Config) NATSEnabled() bool {
	return strings.TrimSpace(c.NATSServers) != ""
}

// load loads configuration from environment variables and an optional .env file
func load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_NAME", "")
	v.SetDefault("EVENT_BUS_URL", "")
	v.SetDefault("EVENT_BUS_TOKEN", "")
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("RESEND_BASE_URL", "https://api.resend.com")
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("NATS_SERVERS", "")
	v.SetDefault("ADMIN_ADDR", "127.0.0.1:8085")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("DEFAULT_LOOKBACK_HOURS", 24)
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("SNAPSHOT_ENDPOINT", "")
	v.SetDefault("SNAPSHOT_ACCESS_KEY", "")
	v.SetDefault("SNAPSHOT_SECRET_KEY", "")
	v.SetDefault("SNAPSHOT_BUCKET", "")
	v.SetDefault("SNAPSHOT_REGION", "")
	v.SetDefault("SNAPSHOT_USE_SSL", true)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "gs-stream-digest")
	v.SetDefault("OTEL_EXPORTER_TYPE", "none")
	v.SetDefault("OTEL_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORT_INTERVAL_MILLIS", 60000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("ENVIRONMENT", "")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.EventBusURL == "" {
			return nil, fmt.Errorf("EVENT_BUS_URL is required")
		}
		if config.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required")
		}
		if config.EmailFrom == "" {
			return nil, fmt.Errorf("EMAIL_FROM is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return &config, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		EmailFrom:            "digest@example.test",
		DefaultLookbackHours: 24,
		HTTPTimeout:          "5s",
		OTelExporterType:     "none",
		LogLevel:             "debug",
		LogFormat:            "text",
	}
}
