// Package config loads service configuration from YAML with environment
// variable overrides for deploy-time secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-core/internal/domain"
)

// Config holds all configuration for the delivery core.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SES       SESConfig       `yaml:"ses"`
	Processor ProcessorConfig `yaml:"processor"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Warmup    WarmupConfig    `yaml:"warmup"`
}

// ServerConfig holds the admin API listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the counter store connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES transport credentials. Empty credentials leave
// the worker on the log-only sender.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// ProcessorConfig tunes the delivery loop.
type ProcessorConfig struct {
	BatchSize            int `yaml:"batch_size"`
	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	SendTimeoutSeconds   int `yaml:"send_timeout_seconds"`
	StuckReclaimMinutes  int `yaml:"stuck_reclaim_minutes"`
	MirrorIntervalMinute int `yaml:"mirror_interval_minutes"`
}

// PollInterval returns the processor tick interval.
func (p ProcessorConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// SendTimeout bounds a single transport call.
func (p ProcessorConfig) SendTimeout() time.Duration {
	return time.Duration(p.SendTimeoutSeconds) * time.Second
}

// StuckThreshold returns how long a processing claim may go stale before
// being reclaimed.
func (p ProcessorConfig) StuckThreshold() time.Duration {
	return time.Duration(p.StuckReclaimMinutes) * time.Minute
}

// ThrottleConfig is the default pacing policy for mailboxes with no
// per-identity configuration.
type ThrottleConfig struct {
	MaxPerHour         int `yaml:"max_per_hour"`
	MaxPerDay          int `yaml:"max_per_day"`
	MinDelaySeconds    int `yaml:"min_delay_seconds"`
	MaxDelaySeconds    int `yaml:"max_delay_seconds"`
	BurstLimit         int `yaml:"burst_limit"`
	BurstWindowSeconds int `yaml:"burst_window_seconds"`
}

// Domain converts the config policy to the domain type.
func (t ThrottleConfig) Domain() domain.ThrottleConfig {
	return domain.ThrottleConfig{
		MaxPerHour:         t.MaxPerHour,
		MaxPerDay:          t.MaxPerDay,
		MinDelaySeconds:    t.MinDelaySeconds,
		MaxDelaySeconds:    t.MaxDelaySeconds,
		BurstLimit:         t.BurstLimit,
		BurstWindowSeconds: t.BurstWindowSeconds,
	}
}

// WarmupConfig tunes the daily maintenance sweep.
type WarmupConfig struct {
	MaintenanceHourUTC int `yaml:"maintenance_hour_utc"`
}

// Load reads configuration from a YAML file and applies defaults. A
// missing file is not an error; the defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}

	if cfg.Processor.BatchSize == 0 {
		cfg.Processor.BatchSize = 50
	}
	if cfg.Processor.PollIntervalSeconds == 0 {
		cfg.Processor.PollIntervalSeconds = 30
	}
	if cfg.Processor.SendTimeoutSeconds == 0 {
		cfg.Processor.SendTimeoutSeconds = 30
	}
	if cfg.Processor.StuckReclaimMinutes == 0 {
		cfg.Processor.StuckReclaimMinutes = 15
	}
	if cfg.Processor.MirrorIntervalMinute == 0 {
		cfg.Processor.MirrorIntervalMinute = 5
	}

	if cfg.Throttle.MaxPerHour == 0 {
		cfg.Throttle.MaxPerHour = domain.DefaultThrottleConfig.MaxPerHour
	}
	if cfg.Throttle.MaxPerDay == 0 {
		cfg.Throttle.MaxPerDay = domain.DefaultThrottleConfig.MaxPerDay
	}
	if cfg.Throttle.MinDelaySeconds == 0 {
		cfg.Throttle.MinDelaySeconds = domain.DefaultThrottleConfig.MinDelaySeconds
	}
	if cfg.Throttle.MaxDelaySeconds == 0 {
		cfg.Throttle.MaxDelaySeconds = domain.DefaultThrottleConfig.MaxDelaySeconds
	}
	if cfg.Throttle.BurstLimit == 0 {
		cfg.Throttle.BurstLimit = domain.DefaultThrottleConfig.BurstLimit
	}
	if cfg.Throttle.BurstWindowSeconds == 0 {
		cfg.Throttle.BurstWindowSeconds = domain.DefaultThrottleConfig.BurstWindowSeconds
	}

	if cfg.Warmup.MaintenanceHourUTC == 0 {
		cfg.Warmup.MaintenanceHourUTC = 6
	}
}
