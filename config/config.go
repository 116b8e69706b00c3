package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"archean-status-relay/internal/logger"
	"archean-status-relay/internal/parse"
)

// ErrInvalidConfig is returned by Validate when a required setting is missing or malformed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Database   DatabaseConfig   `yaml:"database"`
	KV         KVConfig         `yaml:"kv"`
	Push       PushConfig       `yaml:"push"`
	Webhooks   WebhookConfig    `yaml:"webhooks"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        logger.Config    `yaml:"log"`

	// Warnings lists the defaults Load had to substitute for invalid settings.
	// They are reported once the logger is configured.
	Warnings []string `yaml:"-"`
}

// WorkerPoolConfig holds the configuration for the activity feed worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys used for direct reminder delivery.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether direct web push delivery is configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WebhookConfig maps chat locations to incoming webhook URLs.
type WebhookConfig struct {
	// StatusURL receives the live status message, edited in place.
	StatusURL string `yaml:"status_url"`
	// FeedURL receives one message per join/leave/online/offline event.
	FeedURL string `yaml:"feed_url"`
	// Fallback maps a reminder's fallback location id to a webhook URL.
	Fallback map[string]string `yaml:"fallback"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DirectoryConfig holds the settings of the upstream server directory API.
type DirectoryConfig struct {
	BaseURL        string        `yaml:"base_url"`
	HTTPProxy      string        `yaml:"http_proxy"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// TrackingConfig identifies the monitored server.
type TrackingConfig struct {
	Address     string `yaml:"address"`
	HideAddress bool   `yaml:"hide_address"`
	// Domain replaces the host part of the address in the status display when set.
	Domain string `yaml:"domain"`

	Host string `yaml:"-"`
	Port int    `yaml:"-"`
}

// SchedulerConfig holds the cadence of every periodic task.
type SchedulerConfig struct {
	StatusIntervalSeconds     int           `yaml:"status_interval_seconds"`
	StatusInterval            time.Duration `yaml:"-"`
	StatisticsIntervalSeconds int           `yaml:"statistics_interval_seconds"`
	StatisticsInterval        time.Duration `yaml:"-"`
}

// DatabaseConfig selects and tunes the table store. The DSN decides the driver.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// KVConfig locates the JSON document for small singleton values.
type KVConfig struct {
	Path string `yaml:"path"`
}

// Load reads the configuration from the given path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Directory.BaseURL == "" {
		cfg.Directory.BaseURL = "https://api.archean.space"
	}
	cfg.Directory.BaseURL = strings.TrimRight(cfg.Directory.BaseURL, "/")
	if cfg.Directory.TimeoutSeconds <= 0 {
		cfg.Directory.TimeoutSeconds = 10
	}
	cfg.Directory.Timeout = time.Duration(cfg.Directory.TimeoutSeconds) * time.Second

	if cfg.Scheduler.StatusIntervalSeconds <= 0 {
		cfg.Scheduler.StatusIntervalSeconds = 30
	}
	cfg.Scheduler.StatusInterval = time.Duration(cfg.Scheduler.StatusIntervalSeconds) * time.Second
	if cfg.Scheduler.StatisticsIntervalSeconds <= 0 {
		cfg.Scheduler.StatisticsIntervalSeconds = 600
	}
	cfg.Scheduler.StatisticsInterval = time.Duration(cfg.Scheduler.StatisticsIntervalSeconds) * time.Second

	if cfg.KV.Path == "" {
		cfg.KV.Path = "./data/relay.json"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.Warnings = append(cfg.Warnings, "worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks that every setting the relay cannot run without is present.
// It also resolves Tracking.Address into Tracking.Host and Tracking.Port.
func (cfg *Config) Validate() error {
	if cfg.Tracking.Address == "" {
		return fmt.Errorf("%w: tracking.address is required", ErrInvalidConfig)
	}
	addr, err := parse.ParseAddress(cfg.Tracking.Address)
	if err != nil {
		return fmt.Errorf("%w: tracking.address: %v", ErrInvalidConfig, err)
	}
	cfg.Tracking.Host = addr.Host
	cfg.Tracking.Port = addr.Port

	if cfg.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required", ErrInvalidConfig)
	}
	if (cfg.Push.PublicKey == "") != (cfg.Push.PrivateKey == "") {
		return fmt.Errorf("%w: push requires both vapid_public_key and vapid_private_key", ErrInvalidConfig)
	}
	return nil
}
