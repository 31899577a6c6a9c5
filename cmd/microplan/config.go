package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Cluster ClusterConfig `mapstructure:"cluster"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Image   ImageConfig   `mapstructure:"image"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Apply   ApplyConfig   `mapstructure:"apply"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// ClusterConfig selects the cluster services are composed onto.
type ClusterConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

// AWSConfig holds AWS access configuration.
// Leaving both keys empty uses the default credential chain.
type AWSConfig struct {
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	ExecutionRoleARN string `mapstructure:"execution_role_arn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// ImageConfig holds image publishing configuration.
type ImageConfig struct {
	Tag string `mapstructure:"tag"`
}

// LimitsConfig is the reservation applied to every container.
type LimitsConfig struct {
	MemoryMiB int `mapstructure:"memory_mib"`
	CPUShares int `mapstructure:"cpu_shares"`
}

// ApplyConfig tunes plan realization.
type ApplyConfig struct {
	Parallelism int           `mapstructure:"parallelism"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StoreConfig holds plan ledger configuration.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("cluster.name", "microplan")
	v.SetDefault("cluster.kind", "AwsEcs")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.execution_role_arn", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("image.tag", "latest")
	v.SetDefault("limits.memory_mib", 256)
	v.SetDefault("limits.cpu_shares", 256)
	v.SetDefault("apply.parallelism", 4)
	v.SetDefault("apply.timeout", "30m")
	v.SetDefault("store.dsn", "./data/microplan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("MICROPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values viper cannot check by type alone.
func (c *Config) Validate() error {
	if c.Cluster.Name == "" {
		return fmt.Errorf("cluster.name must not be empty")
	}
	if c.Limits.MemoryMiB <= 0 || c.Limits.CPUShares <= 0 {
		return fmt.Errorf("limits must be positive (memory_mib=%d, cpu_shares=%d)", c.Limits.MemoryMiB, c.Limits.CPUShares)
	}
	if c.Apply.Timeout <= 0 {
		return fmt.Errorf("apply.timeout must be positive")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format writing
// to w. The CLI passes stderr so stdout carries only the command's result.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
