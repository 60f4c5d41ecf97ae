// Package config loads service configuration from files and environment
// variables using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int `mapstructure:"write_timeout"` // seconds
}

// ReadTimeoutDuration returns the read timeout as a duration
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a duration
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig selects the transcript store backend
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

// NATSConfig holds event bus settings. An empty URL disables the bus.
type NATSConfig struct {
	URL            string `mapstructure:"url"`
	MaxReconnects  int    `mapstructure:"max_reconnects"`
	ReconnectWait  int    `mapstructure:"reconnect_wait"` // seconds
	ConnectionName string `mapstructure:"connection_name"`
}

// ReconnectWaitDuration returns the reconnect wait as a duration
func (n NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(n.ReconnectWait) * time.Second
}

// OpenAIConfig holds generation service settings
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxRetries  int     `mapstructure:"max_retries"`
	Timeout     int     `mapstructure:"timeout"` // seconds, per attempt
	Temperature float32 `mapstructure:"temperature"`
}

// TimeoutDuration returns the per-attempt timeout as a duration
func (o OpenAIConfig) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// Config is the root configuration for the companion server
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
}

// Load reads configuration from config.yaml (if present) and CONSILIO_*
// environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/consilio")

	v.SetEnvPrefix("CONSILIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2)
	v.SetDefault("nats.connection_name", "consilio-companion-server")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_retries", 3)
	v.SetDefault("openai.timeout", 60)
	v.SetDefault("openai.temperature", 0.7)
}
