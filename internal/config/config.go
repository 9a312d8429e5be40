// Package config provides configuration management for the OSF filesystem
// client with YAML file and environment variable support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultEndpoint is the production OSF API base URL.
const DefaultEndpoint = "https://api.osf.io/v2/"

// DefaultProvider is the storage provider OSF attaches to every project.
const DefaultProvider = "osfstorage"

// Config is the complete client configuration. The zero value is not
// usable; start from NewDefault.
type Config struct {
	// Project is the OSF project (node) identifier all paths resolve
	// against. Operations never cross projects.
	Project string `yaml:"project"`

	// Provider is the storage provider within the project.
	Provider string `yaml:"provider"`

	// RootPath is an optional path prefix under the provider root.
	RootPath string `yaml:"root_path"`

	// Token is the personal access token. Prefer OSF_TOKEN over placing
	// it in a file.
	Token string `yaml:"token"`

	// Endpoint overrides the OSF API base URL (test servers).
	Endpoint string `yaml:"endpoint"`

	Network  NetworkConfig  `yaml:"network"`
	Retry    RetryConfig    `yaml:"retry"`
	Transfer TransferConfig `yaml:"transfer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// NetworkConfig represents connection and timeout settings.
type NetworkConfig struct {
	// Timeout applies to metadata requests (stat, list, delete).
	Timeout time.Duration `yaml:"timeout"`

	// UploadChunkTimeout applies to each individual upload chunk; the
	// timer resets per chunk so arbitrarily large files never trip the
	// metadata timeout while a stuck chunk still fails deterministically.
	UploadChunkTimeout time.Duration `yaml:"upload_chunk_timeout"`

	// PoolSize bounds the reusable connections shared by one client.
	PoolSize int `yaml:"pool_size"`
}

// RetryConfig represents retry and backoff settings.
type RetryConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	BaseDelay           time.Duration `yaml:"base_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	Multiplier          float64       `yaml:"multiplier"`
	RateLimitMultiplier float64       `yaml:"rate_limit_multiplier"`
}

// TransferConfig represents streaming transfer settings.
type TransferConfig struct {
	// DownloadChunkSize is the read granularity for streamed downloads.
	DownloadChunkSize int `yaml:"download_chunk_size"`

	// UploadChunkThreshold is the size above which an upload switches
	// from a single request to chunked mode.
	UploadChunkThreshold int64 `yaml:"upload_chunk_threshold"`

	// UploadChunkSize is the chunk granularity in chunked mode.
	UploadChunkSize int64 `yaml:"upload_chunk_size"`
}

// MetricsConfig represents metrics collection settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Config {
	return &Config{
		Provider: DefaultProvider,
		Endpoint: DefaultEndpoint,
		Network: NetworkConfig{
			Timeout:            30 * time.Second,
			UploadChunkTimeout: 300 * time.Second,
			PoolSize:           10,
		},
		Retry: RetryConfig{
			MaxRetries:          3,
			BaseDelay:           500 * time.Millisecond,
			MaxDelay:            60 * time.Second,
			Multiplier:          2.0,
			RateLimitMultiplier: 4.0,
		},
		Transfer: TransferConfig{
			DownloadChunkSize:    8 * 1024,
			UploadChunkThreshold: 5 * 1024 * 1024,
			UploadChunkSize:      5 * 1024 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "osffs",
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the receiver.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv fills unset fields from environment variables. File and
// parameter values win over the environment, so only empty fields are
// touched for credentials and identity.
func (c *Config) LoadFromEnv() error {
	if c.Token == "" {
		c.Token = os.Getenv("OSF_TOKEN")
	}
	if c.Project == "" {
		c.Project = os.Getenv("OSF_PROJECT_ID")
	}
	if val := os.Getenv("OSF_PROVIDER"); val != "" && c.Provider == DefaultProvider {
		c.Provider = val
	}
	if val := os.Getenv("OSF_API_URL"); val != "" {
		c.Endpoint = val
	}
	if val := os.Getenv("OSF_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Network.Timeout = d
		} else if secs, err := strconv.Atoi(val); err == nil {
			c.Network.Timeout = time.Duration(secs) * time.Second
		}
	}
	if val := os.Getenv("OSF_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retry.MaxRetries = n
		}
	}
	if val := os.Getenv("OSF_POOL_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Network.PoolSize = n
		}
	}
	return nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project identifier is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("storage provider is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL")
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network timeout must be positive")
	}
	if c.Network.UploadChunkTimeout <= 0 {
		return fmt.Errorf("upload chunk timeout must be positive")
	}
	if c.Network.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	if c.Transfer.DownloadChunkSize < 1 {
		return fmt.Errorf("download chunk size must be positive")
	}
	if c.Transfer.UploadChunkThreshold < 1 || c.Transfer.UploadChunkSize < 1 {
		return fmt.Errorf("upload chunk settings must be positive")
	}
	return nil
}
