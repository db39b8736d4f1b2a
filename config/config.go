package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"weather-stream/models"

	"gopkg.in/yaml.v2"
)

// Source kinds
const (
	SourceSimulator = "simulator"
	SourceOpenMeteo = "openmeteo"
)

// Config is the startup configuration. It is built once in main and passed
// to the components that need it.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Generator GeneratorConfig  `yaml:"generator"`
	Source    SourceConfig     `yaml:"source"`
	Log       LogConfig        `yaml:"log"`
	Stations  []models.Station `yaml:"stations"`
}

// ServerConfig holds listener and connection settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// GeneratorConfig holds per-connection generator settings
type GeneratorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SourceConfig selects and tunes the measurement source
type SourceConfig struct {
	Kind      string        `yaml:"kind"`
	BaseURL   string        `yaml:"baseUrl"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cacheTtl"`
	RateLimit float64       `yaml:"rateLimit"`
	Burst     int           `yaml:"burst"`
}

// LogConfig holds log output settings. An empty File logs to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8765,
			IdleTimeout:     300 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Generator: GeneratorConfig{
			Interval: 1000 * time.Millisecond,
		},
		Source: SourceConfig{
			Kind:      SourceSimulator,
			Timeout:   5 * time.Second,
			CacheTTL:  15 * time.Minute,
			RateLimit: 1,
			Burst:     5,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Stations: models.DefaultStations(),
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML settings onto cfg. A missing file is not an error.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("WEATHER_STREAM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEATHER_STREAM_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WEATHER_STREAM_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WEATHER_STREAM_INTERVAL: %w", err)
		}
		cfg.Generator.Interval = d
	}
	if v := os.Getenv("WEATHER_STREAM_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WEATHER_STREAM_IDLE_TIMEOUT: %w", err)
		}
		cfg.Server.IdleTimeout = d
	}
	if v := os.Getenv("WEATHER_STREAM_SOURCE"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("WEATHER_STREAM_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.IdleTimeout < 0 {
		return errors.New("idle timeout must not be negative")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.Generator.Interval <= 0 {
		return errors.New("generator interval must be positive")
	}

	switch c.Source.Kind {
	case SourceSimulator:
	case SourceOpenMeteo:
		if c.Source.Timeout <= 0 {
			return errors.New("source timeout must be positive")
		}
		if c.Source.RateLimit < 0 {
			return errors.New("source rate limit must not be negative")
		}
		if c.Source.RateLimit > 0 && c.Source.Burst < 1 {
			return errors.New("source burst must be at least 1 when rate limiting")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	if _, err := models.NewRegistry(c.Stations); err != nil {
		return fmt.Errorf("stations: %w", err)
	}
	return nil
}
