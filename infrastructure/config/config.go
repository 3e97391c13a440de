package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REPAIRDESK_SQLITE_PATH.
const EnvPrefix = "REPAIRDESK"

// Config holds process settings. Shop settings that vary per branch live in
// the config table instead; see branches.GetConfig.
type Config struct {
	SQLitePath        string        `mapstructure:"sqlite_path"`
	LogLevel          string        `mapstructure:"log_level"`
	AdminPassword     string        `mapstructure:"admin_password"`
	ResetTokenTTL     time.Duration `mapstructure:"reset_token_ttl"`
	PasswordMinLength int           `mapstructure:"password_min_length"`
}

func DefaultConfig() *Config {
	return &Config{
		SQLitePath:        "repairdesk.db",
		LogLevel:          "info",
		AdminPassword:     "admin",
		ResetTokenTTL:     time.Hour,
		PasswordMinLength: 8,
	}
}

// Load reads settings from defaults, then the optional file (YAML, JSON or
// TOML by extension; ./repairdesk.* when file is empty), then environment.
func Load(file string) (*Config, error) {
	def := DefaultConfig()
	v := viper.New()
	v.SetDefault("sqlite_path", def.SQLitePath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("admin_password", def.AdminPassword)
	v.SetDefault("reset_token_ttl", def.ResetTokenTTL)
	v.SetDefault("password_min_length", def.PasswordMinLength)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("repairdesk")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SQLitePath) == "" {
		return &ConfigError{Field: "sqlite_path", Message: "must not be empty"}
	}
	if c.ResetTokenTTL <= 0 {
		return &ConfigError{Field: "reset_token_ttl", Message: "must be positive"}
	}
	if c.PasswordMinLength < 1 {
		return &ConfigError{Field: "password_min_length", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
