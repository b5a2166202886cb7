// Package config provides configuration management for the disaggregation service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// RunConfig holds disaggregation-run configuration.
type RunConfig struct {
	DataDir   string  `mapstructure:"data_dir"`
	Year      int     `mapstructure:"year"`      // loaded but not read by any command; proxy years come from the split config or refine --year
	Threshold float64 `mapstructure:"threshold"` // cell-zeroing threshold for tabular input
	Epsilon   float64 `mapstructure:"epsilon"`   // checked to be non-negative by Validate; no command reads it
	Workers   int     `mapstructure:"workers"`   // concurrent proxy-file loaders
}

// DatabaseConfig holds database connection configuration for the run-history store.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, sqlite or clickhouse
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for base tables / proxy files.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"` // grpc or http
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mrio-disagg")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("run.data_dir", "./data")
	v.SetDefault("run.threshold", 0.0)
	v.SetDefault("run.epsilon", 1e-9)
	v.SetDefault("run.workers", 4)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "mrio-disagg")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite", "clickhouse":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	switch c.Storage.Type {
	case "cos", "local":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Run.Epsilon < 0 {
		return fmt.Errorf("run.epsilon must not be negative")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the run data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Run.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Run.DataDir, 0755)
}

// GetRunDir returns the output directory for a given run identifier.
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.Run.DataDir, runID)
}
