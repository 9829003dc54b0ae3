// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// KeyringService groups stockscan secrets in the OS keychain
const KeyringService = "stockscan"

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the database, charts and lock file (always absolute)
	ChartsDir          string // Directory for captured chart screenshots
	ConfigFile         string // Optional YAML file with schedules and screener seeds
	LogLevel           string
	LogPretty          bool
	Port               int
	DevMode            bool
	Timezone           string
	ChartMaxConcurrent int
	JobRetention       time.Duration
	Browser            BrowserConfig
	ScreenerIn         ScreenerInConfig
	Archive            ArchiveConfig
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	ExecPath    string // Empty lets chromedp locate Chrome
	Headless    bool
	UserAgent   string
	CallTimeout time.Duration
}

// ScreenerInConfig holds credentials for the authenticated screener source
type ScreenerInConfig struct {
	Username  string
	Password  string
	PageDelay time.Duration
}

// ArchiveConfig holds S3/R2 settings for uploading captured charts
type ArchiveConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for R2 or MinIO, empty for AWS
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STOCKSCAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	chartsDir := getEnv("STOCKSCAN_CHARTS_DIR", filepath.Join(absDataDir, "charts"))
	absChartsDir, err := filepath.Abs(chartsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve charts directory path: %w", err)
	}
	if err := os.MkdirAll(absChartsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create charts directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		ChartsDir:          absChartsDir,
		ConfigFile:         getEnv("STOCKSCAN_CONFIG_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
		Port:               getEnvAsInt("PORT", 8010),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		Timezone:           getEnv("TIMEZONE", "Asia/Kolkata"),
		ChartMaxConcurrent: getEnvAsInt("CHART_MAX_CONCURRENT", 2),
		JobRetention:       getEnvAsDuration("JOB_RETENTION", 24*time.Hour),
		Browser: BrowserConfig{
			ExecPath:    getEnv("CHROME_PATH", ""),
			Headless:    getEnvAsBool("BROWSER_HEADLESS", true),
			UserAgent:   getEnv("BROWSER_USER_AGENT", DefaultUserAgent),
			CallTimeout: getEnvAsDuration("BROWSER_CALL_TIMEOUT", 60*time.Second),
		},
		ScreenerIn: ScreenerInConfig{
			Username:  getEnv("SCREENERIN_USERNAME", ""),
			Password:  getEnv("SCREENERIN_PASSWORD", ""),
			PageDelay: getEnvAsDuration("SCREENERIN_PAGE_DELAY", 2*time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Prefix:          getEnv("ARCHIVE_PREFIX", "charts"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		},
	}

	// Keychain is the fallback for the screener.in password
	if cfg.ScreenerIn.Password == "" && cfg.ScreenerIn.Username != "" {
		if pw, err := keyring.Get(KeyringService, ScreenerInKeyringAccount(cfg.ScreenerIn.Username)); err == nil {
			cfg.ScreenerIn.Password = strings.TrimSpace(pw)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultUserAgent is the fixed desktop user agent presented to scraped sites
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ScreenerInKeyringAccount returns the keychain account name for a screener.in user
func ScreenerInKeyringAccount(username string) string {
	return fmt.Sprintf("stockscan:screenerin:%s", username)
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DatabasePath returns the path of the stocks database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "stocks.db")
}

// LockPath returns the path of the data directory lock file
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "stockscan.lock")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ChartMaxConcurrent <= 0 {
		return fmt.Errorf("CHART_MAX_CONCURRENT must be positive, got %d", c.ChartMaxConcurrent)
	}
	if c.Browser.CallTimeout <= 0 {
		return fmt.Errorf("BROWSER_CALL_TIMEOUT must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_BUCKET is required when ARCHIVE_ENABLED is set")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
