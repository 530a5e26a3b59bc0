package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MaxPageSize is the largest page the timeline endpoint serves
	MaxPageSize = 100
	// MinPageSize is the smallest page the timeline endpoint accepts
	MinPageSize = 5
	// DefaultRetrievalCeiling is the documented per-account retrieval limit of the timeline endpoint
	DefaultRetrievalCeiling = 3200
)

// Config holds all configuration options for the archiver
type Config struct {
	// Upstream API settings
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy shared by page and media requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Cross-account scheduling
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TwitterConfig holds upstream API configuration
type TwitterConfig struct {
	BearerToken      string        `yaml:"bearer_token" json:"-"`
	APIBaseURL       string        `yaml:"api_base_url" json:"api_base_url"`
	UserAgent        string        `yaml:"user_agent" json:"user_agent"`
	PageSize         int           `yaml:"page_size" json:"page_size"`
	RetrievalCeiling int           `yaml:"retrieval_ceiling" json:"retrieval_ceiling"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PageRequestsPerWindow  int           `yaml:"page_requests_per_window" json:"page_requests_per_window"`
	PageWindow             time.Duration `yaml:"page_window" json:"page_window"`
	MediaRequestsPerMinute int           `yaml:"media_requests_per_minute" json:"media_requests_per_minute"`
}

// RetryConfig holds the backoff policy
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ManifestName  string `yaml:"manifest_name" json:"manifest_name"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	Photos              bool          `yaml:"photos" json:"photos"`
	Videos              bool          `yaml:"videos" json:"videos"`
	AnimatedImages      bool          `yaml:"animated_images" json:"animated_images"`
}

// SyncConfig controls how accounts are scheduled
type SyncConfig struct {
	ConcurrentAccounts int  `yaml:"concurrent_accounts" json:"concurrent_accounts"`
	FailFast           bool `yaml:"fail_fast" json:"fail_fast"`
	// SessionTimeout is how long a session marker of another sync is honoured
	// when its process cannot be checked, such as a run on another host
	SessionTimeout time.Duration `yaml:"session_timeout" json:"session_timeout"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			APIBaseURL:       "https://api.twitter.com",
			UserAgent:        "twarchive/1.0",
			PageSize:         MaxPageSize,
			RetrievalCeiling: DefaultRetrievalCeiling,
			Timeout:          30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PageRequestsPerWindow:  900,
			PageWindow:             15 * time.Minute,
			MediaRequestsPerMinute: 300,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			BaseDelay:    time.Second,
			MaxDelay:     15 * time.Minute,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Output: OutputConfig{
			BaseDirectory: "./archive",
			ManifestName:  "tweets.json",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			DownloadTimeout:     2 * time.Minute,
			Photos:              true,
			Videos:              true,
			AnimatedImages:      true,
		},
		Sync: SyncConfig{
			ConcurrentAccounts: 2,
			SessionTimeout:     6 * time.Hour,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if token := os.Getenv("TWARCHIVE_BEARER_TOKEN"); token != "" {
		c.Twitter.BearerToken = token
	}
	if baseURL := os.Getenv("TWARCHIVE_API_BASE_URL"); baseURL != "" {
		c.Twitter.APIBaseURL = baseURL
	}
	if outputDir := os.Getenv("TWARCHIVE_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if logLevel := os.Getenv("TWARCHIVE_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	envInt := func(name string, dst *int) {
		raw := os.Getenv(name)
		if raw == "" {
			return
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = val
	}
	envInt("TWARCHIVE_CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	envInt("TWARCHIVE_CONCURRENT_ACCOUNTS", &c.Sync.ConcurrentAccounts)
	envInt("TWARCHIVE_MAX_RETRIES", &c.Retry.MaxAttempts)

	envBool := func(name string, dst *bool) {
		raw := os.Getenv(name)
		if raw == "" {
			return
		}
		val, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = val
	}
	envBool("TWARCHIVE_PHOTOS", &c.Download.Photos)
	envBool("TWARCHIVE_VIDEOS", &c.Download.Videos)
	envBool("TWARCHIVE_ANIMATED_IMAGES", &c.Download.AnimatedImages)
	envBool("TWARCHIVE_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".twarchive.yaml",
		".twarchive.yml",
		filepath.Join(home, ".config", "twarchive", "config.yaml"),
		filepath.Join(home, ".config", "twarchive", "config.yml"),
		filepath.Join(home, ".twarchive.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "twarchive", "config.yaml")
}

// Validate checks if the configuration is valid. The bearer token is checked
// separately by ValidateCredentials because offline commands never need it.
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.APIBaseURL == "" {
		errs = append(errs, errors.New("api base url is required"))
	}
	if c.Twitter.PageSize < MinPageSize || c.Twitter.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("page size must be between %d and %d", MinPageSize, MaxPageSize))
	}
	if c.Twitter.RetrievalCeiling <= 0 {
		errs = append(errs, errors.New("retrieval ceiling must be positive"))
	}
	if c.Twitter.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.PageRequestsPerWindow <= 0 || c.RateLimit.PageWindow <= 0 {
		errs = append(errs, errors.New("page rate limit must be positive"))
	}
	if c.RateLimit.MediaRequestsPerMinute <= 0 {
		errs = append(errs, errors.New("media requests per minute must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry delays must satisfy 0 <= base_delay <= max_delay"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("retry jitter factor must be between 0 and 1"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 16 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 16"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Sync.ConcurrentAccounts <= 0 {
		errs = append(errs, errors.New("concurrent accounts must be positive"))
	}
	if c.Sync.SessionTimeout < 0 {
		errs = append(errs, errors.New("session timeout must not be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.ManifestName == "" || filepath.Base(c.Output.ManifestName) != c.Output.ManifestName {
		errs = append(errs, errors.New("manifest name must be a plain file name"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "console" && f != "json" {
		errs = append(errs, errors.New("invalid log format"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// ValidateCredentials reports whether a bearer token is available
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.Twitter.BearerToken) == "" {
		return errors.New("bearer token is required (set TWARCHIVE_BEARER_TOKEN or run `twarchive auth login`)")
	}
	return nil
}

// AnyKindEnabled reports whether at least one media kind is selected
func (c *Config) AnyKindEnabled() bool {
	return c.Download.Photos || c.Download.Videos || c.Download.AnimatedImages
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied, so unset flags keep lower precedence values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["token"].(string); ok && token != "" {
		c.Twitter.BearerToken = token
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrency"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if accounts, ok := flags["parallel-accounts"].(int); ok && accounts > 0 {
		c.Sync.ConcurrentAccounts = accounts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if v, ok := flags["photos"].(bool); ok {
		c.Download.Photos = v
	}
	if v, ok := flags["videos"].(bool); ok {
		c.Download.Videos = v
	}
	if v, ok := flags["gifs"].(bool); ok {
		c.Download.AnimatedImages = v
	}
	if v, ok := flags["fail-fast"].(bool); ok {
		c.Sync.FailFast = v
	}
	if v, ok := flags["notify"].(bool); ok {
		c.Notifications.Enabled = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".twarchive.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
