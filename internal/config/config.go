package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix is prepended to every environment variable override
const EnvPrefix = "JAMF_REDEPLOY"

type Config struct {
	Jamf        JamfConfig        `mapstructure:"jamf"`
	Bulk        BulkConfig        `mapstructure:"bulk"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

// JamfConfig identifies the Jamf Pro server and API client
type JamfConfig struct {
	URL          string        `mapstructure:"url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig controls retries of throttled and failed API requests
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"` // 1 disables retries
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	BackoffMultiple float64       `mapstructure:"backoff_multiple"`
}

// BulkConfig controls bulk redeploy runs
type BulkConfig struct {
	Delay time.Duration `mapstructure:"delay"` // pause between consecutive computers
}

// CredentialsConfig configures the encrypted secret store
type CredentialsConfig struct {
	StorePath     string `mapstructure:"store_path"`
	PassphraseEnv string `mapstructure:"passphrase_env"` // env var holding the store passphrase
	Service       string `mapstructure:"service"`
	SaveSecret    bool   `mapstructure:"save_secret"`
	WorkFactor    int    `mapstructure:"work_factor"`
}

type DatabaseConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Type                   string `mapstructure:"type"` // "sqlite", "postgres" or "sqlserver"
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MCPConfig configures the MCP SSE listener
type MCPConfig struct {
	Address string `mapstructure:"address"`
}

// Load reads configuration from configFile, or from jamf-redeploy.yaml in the
// usual locations when configFile is empty. A .env file in the working directory
// is applied first. A missing default config file is not an error.
func Load(configFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("jamf-redeploy")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "jamf-redeploy"))
		}
	}

	// Environment variable support
	viper.SetEnvPrefix(EnvPrefix)
	// jamf.client_secret -> JAMF_REDEPLOY_JAMF_CLIENT_SECRET
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Jamf.URL = strings.TrimRight(strings.TrimSpace(cfg.Jamf.URL), "/")
	cfg.Credentials.StorePath = expandHome(cfg.Credentials.StorePath)

	return &cfg, nil
}

// ConfigFileUsed returns the config file that was read, if any
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

func setDefaults() {
	viper.SetDefault("jamf.url", "")
	viper.SetDefault("jamf.client_id", "")
	viper.SetDefault("jamf.client_secret", "")
	viper.SetDefault("jamf.timeout", "30s")
	viper.SetDefault("jamf.user_agent", "jamf-redeploy")
	viper.SetDefault("jamf.retry.max_attempts", 1)
	viper.SetDefault("jamf.retry.initial_backoff", "1s")
	viper.SetDefault("jamf.retry.max_backoff", "30s")
	viper.SetDefault("jamf.retry.backoff_multiple", 2.0)
	viper.SetDefault("bulk.delay", "500ms")
	viper.SetDefault("credentials.store_path", "~/.config/jamf-redeploy/credentials.age")
	viper.SetDefault("credentials.passphrase_env", EnvPrefix+"_PASSPHRASE")
	viper.SetDefault("credentials.service", "co.uk.mallion.Jamf-Framework-Redeploy")
	viper.SetDefault("credentials.save_secret", false)
	viper.SetDefault("credentials.work_factor", 0)
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "./data/jamf-redeploy.db")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output_file", "")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mcp.address", ":8081")
}

// loadDotEnv applies KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is ignored.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Passphrase returns the credential store passphrase from the configured env var
func (c CredentialsConfig) Passphrase() string {
	if c.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.PassphraseEnv)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
