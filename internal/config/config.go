// Package config provides configuration loading and validation for the
// data integration platform.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dispatch modes for sync triggers.
const (
	// DispatchModeQueued creates a QUEUED job and enqueues a dispatch
	// message; a consumer worker executes the pipeline.
	DispatchModeQueued = "queued"

	// DispatchModeDirect runs the full pipeline inline on the trigger call.
	DispatchModeDirect = "direct"
)

const (
	defaultAddress         = ":8080"
	defaultPageSize        = 100
	defaultMaxRetries      = 3
	defaultWorkers         = 2
	defaultMaxReceiveCount = 3
	defaultSSLMode         = "require"
)

// Option configures the loader.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		cfg.path = realPath
		return nil
	}
}

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Database     *DatabaseConfig `yaml:"database,omitempty"`
	Queue        *QueueConfig    `yaml:"queue,omitempty"`
	Sources      SourcesConfig   `yaml:"sources"`
	DispatchMode string          `yaml:"dispatchMode,omitempty"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// DatabaseConfig holds Postgres connection settings. When the database
// block is absent from the config, the in-memory store is used instead.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode,omitempty"`
}

// ConnString builds a pgx connection string from the configuration.
// The password is resolved from DIP_DATABASE_PASSWORD when not set inline.
func (d *DatabaseConfig) ConnString() string {
	password := d.Password
	if password == "" {
		password = os.Getenv("DIP_DATABASE_PASSWORD")
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, password, d.Database, sslMode,
	)
}

// MigrateURL builds a golang-migrate URL for the pgx5 driver.
func (d *DatabaseConfig) MigrateURL() string {
	password := d.Password
	if password == "" {
		password = os.Getenv("DIP_DATABASE_PASSWORD")
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(password), d.Host, d.Port, d.Database, sslMode,
	)
}

// QueueConfig holds SQS dispatch settings.
type QueueConfig struct {
	// Endpoint overrides the SQS endpoint (LocalStack in development).
	Endpoint string `yaml:"endpoint,omitempty"`
	Region   string `yaml:"region"`

	// Static credentials for development; production deployments use the
	// default AWS credential chain when these are empty.
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`

	QueueName           string `yaml:"queueName"`
	DeadLetterQueueName string `yaml:"deadLetterQueueName"`

	// MaxReceiveCount is the redrive threshold: after this many failed
	// deliveries a message moves to the dead-letter queue.
	MaxReceiveCount int `yaml:"maxReceiveCount,omitempty"`

	// Workers is the number of concurrent consumer workers.
	Workers int `yaml:"workers,omitempty"`
}

// SourcesConfig holds the three upstream API client configurations.
type SourcesConfig struct {
	CRM        SourceConfig `yaml:"crm"`
	ERP        SourceConfig `yaml:"erp"`
	Accounting SourceConfig `yaml:"accounting"`
}

// SourceConfig holds settings for one paginated source API.
type SourceConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	PageSize   int    `yaml:"pageSize,omitempty"`
	MaxRetries int    `yaml:"maxRetries,omitempty"`
}

// TelemetryConfig holds metrics settings.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// Load reads, defaults, and validates the configuration.
func Load(opts ...Option) (*Config, error) {
	lc := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(lc); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if lc.path != "" {
		data, err := os.ReadFile(lc.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.DispatchMode == "" {
		if c.Queue != nil {
			c.DispatchMode = DispatchModeQueued
		} else {
			c.DispatchMode = DispatchModeDirect
		}
	}
	if c.Queue != nil {
		if c.Queue.MaxReceiveCount == 0 {
			c.Queue.MaxReceiveCount = defaultMaxReceiveCount
		}
		if c.Queue.Workers == 0 {
			c.Queue.Workers = defaultWorkers
		}
	}
	for _, src := range []*SourceConfig{&c.Sources.CRM, &c.Sources.ERP, &c.Sources.Accounting} {
		if src.PageSize == 0 {
			src.PageSize = defaultPageSize
		}
		if src.MaxRetries == 0 {
			src.MaxRetries = defaultMaxRetries
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.DispatchMode {
	case DispatchModeQueued, DispatchModeDirect:
	default:
		return fmt.Errorf("invalid dispatch mode: %s", c.DispatchMode)
	}
	if c.DispatchMode == DispatchModeQueued && c.Queue == nil {
		return fmt.Errorf("queued dispatch mode requires a queue configuration")
	}
	if c.Queue != nil {
		if c.Queue.Region == "" {
			return fmt.Errorf("queue region is required")
		}
		if c.Queue.QueueName == "" {
			return fmt.Errorf("queue name is required")
		}
		if c.Queue.DeadLetterQueueName == "" {
			return fmt.Errorf("dead-letter queue name is required")
		}
	}
	if c.Database != nil {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database port is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	for name, src := range map[string]SourceConfig{
		"crm":        c.Sources.CRM,
		"erp":        c.Sources.ERP,
		"accounting": c.Sources.Accounting,
	} {
		if src.BaseURL == "" {
			continue // source disabled
		}
		if _, err := url.ParseRequestURI(src.BaseURL); err != nil {
			return fmt.Errorf("invalid %s base URL: %w", name, err)
		}
	}
	return nil
}
