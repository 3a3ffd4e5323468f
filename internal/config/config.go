package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	DBType          string        `mapstructure:"db_type" validate:"required,oneof=sqlite postgres mysql"`
	DBConn          string        `mapstructure:"db_conn" validate:"required"`
	LogLevel        string        `mapstructure:"log_level"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	StrictSSHKey    bool          `mapstructure:"strict_sshkey"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// MaintenanceSchedule is a cron spec; empty disables the scheduler.
	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port" validate:"required_with=SMTPHost"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SenderEmail  string `mapstructure:"sender_email" validate:"required_with=SMTPHost"`
	NotifyEmail  string `mapstructure:"notify_email" validate:"required_with=SMTPHost"`
}

var defaults = map[string]any{
	"port":                 "5000",
	"db_type":              "sqlite",
	"db_conn":              "file:passhport.db?_pragma=foreign_keys(1)",
	"log_level":            "INFO",
	"jwt_secret":           "",
	"strict_sshkey":        false,
	"read_timeout":         10 * time.Second,
	"write_timeout":        10 * time.Second,
	"shutdown_timeout":     15 * time.Second,
	"maintenance_schedule": "@daily",
	"smtp_host":            "",
	"smtp_port":            "25",
	"smtp_username":        "",
	"smtp_password":        "",
	"sender_email":         "",
	"notify_email":         "",
}

// NewConfig loads configuration from defaults, an optional yaml file and
// environment variables, in increasing order of precedence.
func NewConfig(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DBType = strings.ToLower(cfg.DBType)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// NotificationsEnabled reports whether SMTP notifications are configured
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != ""
}

// AuthEnabled reports whether bearer token auth protects the API
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
