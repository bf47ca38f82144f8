// Package config loads chomp's runtime configuration from a YAML file,
// with environment-variable overrides and recursive includes, grounded
// on pkg/config/config.go's godotenv+envdecode+yaml.v3 layering in the
// teacher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CacheConfig controls the Redis-backed cache bus.
type CacheConfig struct {
	Addr      string `yaml:"addr" env:"CHOMP_CACHE_ADDR"`
	Password  string `yaml:"password" env:"CHOMP_CACHE_PASSWORD"`
	DB        int    `yaml:"db" env:"CHOMP_CACHE_DB"`
	Namespace string `yaml:"namespace" env:"CHOMP_CACHE_NAMESPACE"`
}

// StorageConfig controls the persistence adapter.
type StorageConfig struct {
	Adapter string `yaml:"adapter" env:"CHOMP_STORAGE_ADAPTER"` // postgres, sqlite, tdengine, ...
	DSN     string `yaml:"dsn" env:"CHOMP_STORAGE_DSN"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CHOMP_LOG_LEVEL"`
	Format string `yaml:"format" env:"CHOMP_LOG_FORMAT"`
}

// ServerConfig controls the Query API's HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"CHOMP_SERVER_HOST"`
	Port int    `yaml:"port" env:"CHOMP_SERVER_PORT"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHOMP_METRICS_ENABLED"`
	Addr    string `yaml:"addr" env:"CHOMP_METRICS_ADDR"`
}

// ClusterConfig controls the claim/registry behavior.
type ClusterConfig struct {
	MaxJobs     int     `yaml:"max_jobs" env:"CHOMP_MAX_JOBS"`
	Probability float64 `yaml:"probability" env:"CHOMP_CLAIM_PROBABILITY"`
	UIDMasks    string  `yaml:"uid_masks" env:"CHOMP_UID_MASKS_FILE"`

	// Threaded selects the scheduler's run_threaded mode over
	// run_async (spec.md §6 "-t --threaded", SPEC_FULL.md Open
	// Question #3: both modes are honored rather than one being
	// dropped).
	Threaded bool `yaml:"threaded" env:"CHOMP_THREADED"`
}

// IngestionConfig bounds every stateless fetcher's retry/timeout
// behavior (spec.md §6 "-r/-rc/-it" flags).
type IngestionConfig struct {
	MaxRetries       int `yaml:"max_retries" env:"CHOMP_MAX_RETRIES"`
	RetryCooldownSec int `yaml:"retry_cooldown" env:"CHOMP_RETRY_COOLDOWN"`
	TimeoutSec       int `yaml:"ingestion_timeout" env:"CHOMP_INGESTION_TIMEOUT"`
}

// Include is a recursive "include: other.yml" directive resolved
// relative to the including file.
type Include struct {
	Include string `yaml:"include"`
}

// Config is chomp's top-level configuration document (spec.md §6).
type Config struct {
	// ProcID is the CLI-only "-i --proc_id" override (spec.md §6); it
	// is never read from a config file, only set by cmd/chomp after
	// Load returns.
	ProcID string `yaml:"-"`

	Mode      string          `yaml:"mode" env:"CHOMP_MODE"` // worker, server
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Ingesters []IngesterSpec  `yaml:"ingesters"`
	Includes  []string        `yaml:"include"`
}

// New returns a Config populated with chomp's defaults.
func New() *Config {
	return &Config{
		Mode: "worker",
		Cache: CacheConfig{
			Addr:      "127.0.0.1:6379",
			Namespace: "chomp:",
		},
		Storage: StorageConfig{
			Adapter: "sqlite",
			DSN:     "chomp.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 40004,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:9101",
		},
		Cluster: ClusterConfig{
			MaxJobs:     16,
			Probability: 1.0,
			Threaded:    true,
		},
		Ingestion: IngestionConfig{
			MaxRetries:       5,
			RetryCooldownSec: 2,
			TimeoutSec:       3,
		},
	}
}

// Load reads path (and any files it transitively includes), then applies
// environment-variable overrides via envdecode. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()
	if path != "" {
		if err := loadFile(path, cfg, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("config: decode env: %w", err)
		}
	}
	return cfg, nil
}

// loadFile unmarshals path into cfg, then recursively merges every file
// named in cfg.Includes (resolved relative to path's directory). visited
// guards against include cycles.
func loadFile(path string, cfg *Config, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if visited[abs] {
		return fmt.Errorf("config: include cycle at %s", abs)
	}
	visited[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", abs, err)
	}

	layer := &Config{}
	if err := yaml.Unmarshal(data, layer); err != nil {
		return fmt.Errorf("config: parse %s: %w", abs, err)
	}

	dir := filepath.Dir(abs)
	for _, inc := range layer.Includes {
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(dir, incPath)
		}
		if err := loadFile(incPath, cfg, visited); err != nil {
			return err
		}
	}

	mergeInto(cfg, layer)
	return nil
}

// mergeInto overlays every non-zero field of src onto dst, so later
// (more specific) includes win over earlier ones and the top-level file
// wins over everything it includes.
func mergeInto(dst, src *Config) {
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
	if src.Cache.Addr != "" {
		dst.Cache = src.Cache
	}
	if src.Storage.Adapter != "" {
		dst.Storage = src.Storage
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Server.Port != 0 {
		dst.Server = src.Server
	}
	if src.Metrics.Addr != "" {
		dst.Metrics = src.Metrics
	}
	if src.Cluster.MaxJobs != 0 {
		dst.Cluster.MaxJobs = src.Cluster.MaxJobs
	}
	if src.Cluster.Probability != 0 {
		dst.Cluster.Probability = src.Cluster.Probability
	}
	if src.Cluster.UIDMasks != "" {
		dst.Cluster.UIDMasks = src.Cluster.UIDMasks
	}
	if src.Ingestion.MaxRetries != 0 {
		dst.Ingestion.MaxRetries = src.Ingestion.MaxRetries
	}
	if src.Ingestion.RetryCooldownSec != 0 {
		dst.Ingestion.RetryCooldownSec = src.Ingestion.RetryCooldownSec
	}
	if src.Ingestion.TimeoutSec != 0 {
		dst.Ingestion.TimeoutSec = src.Ingestion.TimeoutSec
	}
	if len(src.Ingesters) > 0 {
		dst.Ingesters = append(dst.Ingesters, src.Ingesters...)
	}
}
