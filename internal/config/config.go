package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Timestamp formats accepted for heartbeat records
const (
	TimestampRFC3339     = "rfc3339"
	TimestampRFC3339Nano = "rfc3339nano"
	TimestampISO8601     = "iso8601"
)

// envPrefix is the prefix for environment variable overrides
const envPrefix = "WLM_AGENT"

// Config represents the complete agent configuration
type Config struct {
	DeviceID      string          `mapstructure:"device_id"`
	SubjectPrefix string          `mapstructure:"subject_prefix"`
	NATS          NATSConfig      `mapstructure:"nats"`
	Heartbeat     HeartbeatConfig `mapstructure:"heartbeat"`
	Logging       LoggingConfig   `mapstructure:"logging"`
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URLs          []string      `mapstructure:"urls"`
	Auth          AuthConfig    `mapstructure:"auth"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// AuthConfig holds NATS authentication credentials
type AuthConfig struct {
	Type      string `mapstructure:"type"`       // creds, token, userpass, none
	CredsFile string `mapstructure:"creds_file"` // for creds auth
	Token     string `mapstructure:"token"`      // for token auth
	Username  string `mapstructure:"username"`   // for userpass auth
	Password  string `mapstructure:"password"`   // for userpass auth
}

// HeartbeatConfig configures the WLM heartbeat task
type HeartbeatConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	PublishOnStart   bool          `mapstructure:"publish_on_start"`
	DataType         string        `mapstructure:"data_type"`
	IPName           string        `mapstructure:"ip_name"`
	ComputerOverride string        `mapstructure:"computer_override"`
	TimestampFormat  string        `mapstructure:"timestamp_format"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

var (
	validDeviceID      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validSubjectPrefix = regexp.MustCompile(`^[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*$`)
)

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets sensible default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("subject_prefix", "agents")

	// NATS defaults
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.max_reconnects", -1) // infinite
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.drain_timeout", "30s")

	// Heartbeat defaults
	v.SetDefault("heartbeat.enabled", true)
	v.SetDefault("heartbeat.interval", "1m")
	v.SetDefault("heartbeat.publish_on_start", true)
	v.SetDefault("heartbeat.data_type", "WLM_HEARTBEAT_BLOB")
	v.SetDefault("heartbeat.ip_name", "")
	v.SetDefault("heartbeat.computer_override", "")
	v.SetDefault("heartbeat.timestamp_format", TimestampRFC3339)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "/var/log/wlm-agent/agent.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)
	v.SetDefault("logging.console", true)
}

// envOnlyKeys have no default, so AutomaticEnv alone would not surface them on Unmarshal
var envOnlyKeys = []string{
	"device_id",
	"nats.urls",
	"nats.auth.creds_file",
	"nats.auth.token",
	"nats.auth.username",
	"nats.auth.password",
}

// bindEnv registers environment variables for keys without defaults
func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// validate checks that required fields are present and valid
func validate(cfg *Config) error {
	if cfg.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	// device_id becomes a NATS subject token
	if !validDeviceID.MatchString(cfg.DeviceID) {
		return fmt.Errorf("device_id must contain only alphanumeric characters, dashes, and underscores (got: %s)", cfg.DeviceID)
	}

	if !validSubjectPrefix.MatchString(cfg.SubjectPrefix) {
		return fmt.Errorf("subject_prefix must be dot-separated alphanumeric tokens (got: %q)", cfg.SubjectPrefix)
	}

	if len(cfg.NATS.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL is required")
	}

	switch cfg.NATS.Auth.Type {
	case "creds":
		if cfg.NATS.Auth.CredsFile == "" {
			return fmt.Errorf("creds_file is required for creds auth type")
		}
	case "token":
		if cfg.NATS.Auth.Token == "" {
			return fmt.Errorf("token is required for token auth type")
		}
	case "userpass":
		if cfg.NATS.Auth.Username == "" || cfg.NATS.Auth.Password == "" {
			return fmt.Errorf("username and password are required for userpass auth type")
		}
	case "none":
	default:
		return fmt.Errorf("invalid auth type: %s (must be creds, token, userpass, or none)", cfg.NATS.Auth.Type)
	}

	if cfg.Heartbeat.Enabled && cfg.Heartbeat.Interval < 10*time.Second {
		return fmt.Errorf("heartbeat interval must be at least 10 seconds (got: %v)", cfg.Heartbeat.Interval)
	}

	if cfg.Heartbeat.DataType == "" {
		return fmt.Errorf("heartbeat data_type is required")
	}

	if _, err := TimestampLayout(cfg.Heartbeat.TimestampFormat); err != nil {
		return err
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	if cfg.Logging.MaxSizeMB < 1 || cfg.Logging.MaxSizeMB > 1000 {
		return fmt.Errorf("log max_size_mb must be between 1 and 1000 (got: %d)", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxBackups > 100 {
		return fmt.Errorf("log max_backups must be between 0 and 100 (got: %d)", cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max_age_days must not be negative (got: %d)", cfg.Logging.MaxAgeDays)
	}

	return nil
}

// TimestampLayout maps a configured timestamp format name to a time layout
func TimestampLayout(format string) (string, error) {
	switch format {
	case TimestampRFC3339:
		return time.RFC3339, nil
	case TimestampRFC3339Nano:
		return time.RFC3339Nano, nil
	case TimestampISO8601:
		return "2006-01-02T15:04:05.000Z07:00", nil
	default:
		return "", fmt.Errorf("invalid heartbeat timestamp_format: %q (must be rfc3339, rfc3339nano, or iso8601)", format)
	}
}
