package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default engine parameters
const (
	DefaultFreshnessWindow   = 7 * 24 * time.Hour
	DefaultDedupWindow       = 2 * time.Second
	DefaultDedupCapacity     = 25
	DefaultDeliveryBuffer    = 256
	DefaultWatchBuffer       = 1024
	DefaultListWorkers       = 8
	DefaultReadRetryAttempts = 3
)

// Config holds all configuration for the application
type Config struct {
	// Chat log directory to observe
	ChatLogDir string `yaml:"chatlog_dir"`

	// Engine settings
	FreshnessWindow   time.Duration `yaml:"freshness_window"`    // Files older than this are never selected
	DedupWindow       time.Duration `yaml:"dedup_window"`        // Identical messages inside this window are delivered once
	DedupCapacity     int           `yaml:"dedup_capacity"`      // Recent message window size
	DeliveryBuffer    int           `yaml:"delivery_buffer"`     // Bounded queue between admission and consumer
	WatchBuffer       int           `yaml:"watch_buffer"`        // fsnotify event buffer; 0 = unbuffered
	ListWorkers       int           `yaml:"list_workers"`        // Parallel filename matching on full reload
	ReadRetryAttempts int           `yaml:"read_retry_attempts"` // Bounded retry for transient read failures

	// Offset persistence (empty = offsets live in memory for the process lifetime)
	OffsetDBPath string `yaml:"offset_db_path"`

	// Observability
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
	TracingProtocol string `yaml:"tracing_protocol"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		FreshnessWindow:   DefaultFreshnessWindow,
		DedupWindow:       DefaultDedupWindow,
		DedupCapacity:     DefaultDedupCapacity,
		DeliveryBuffer:    DefaultDeliveryBuffer,
		WatchBuffer:       DefaultWatchBuffer,
		ListWorkers:       DefaultListWorkers,
		ReadRetryAttempts: DefaultReadRetryAttempts,
		LogLevel:          "info",
		TracingProtocol:   "grpc",
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE) and environment variables.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file without environment overrides
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ChatLogDir = getEnv("CHATLOG_DIR", c.ChatLogDir)

	c.FreshnessWindow = getEnvDuration("FRESHNESS_WINDOW", c.FreshnessWindow)
	c.DedupWindow = getEnvDuration("DEDUP_WINDOW", c.DedupWindow)
	c.DedupCapacity = getEnvInt("DEDUP_CAPACITY", c.DedupCapacity)
	c.DeliveryBuffer = getEnvInt("DELIVERY_BUFFER", c.DeliveryBuffer)
	c.WatchBuffer = getEnvInt("WATCH_BUFFER", c.WatchBuffer)
	c.ListWorkers = getEnvInt("LIST_WORKERS", c.ListWorkers)
	c.ReadRetryAttempts = getEnvInt("READ_RETRY_ATTEMPTS", c.ReadRetryAttempts)

	c.OffsetDBPath = getEnv("OFFSET_DB_PATH", c.OffsetDBPath)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.TracingEnabled = getEnvBool("TRACING_ENABLED", c.TracingEnabled)
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", c.TracingEndpoint)
	c.TracingProtocol = getEnv("TRACING_PROTOCOL", c.TracingProtocol)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ChatLogDir) == "" {
		return fmt.Errorf("CHATLOG_DIR is required")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW must be positive")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.DedupCapacity < 2 {
		return fmt.Errorf("DEDUP_CAPACITY must be at least 2")
	}
	if c.DeliveryBuffer < 1 {
		return fmt.Errorf("DELIVERY_BUFFER must be at least 1")
	}
	if c.WatchBuffer < 0 {
		return fmt.Errorf("WATCH_BUFFER must not be negative")
	}
	if c.ListWorkers < 1 {
		return fmt.Errorf("LIST_WORKERS must be at least 1")
	}
	if c.ReadRetryAttempts < 1 {
		return fmt.Errorf("READ_RETRY_ATTEMPTS must be at least 1")
	}
	if c.TracingEnabled && c.TracingProtocol != "grpc" && c.TracingProtocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be grpc or http")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable ("2s", "168h") or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
