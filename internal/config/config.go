// Package config loads fetcher configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full fetcher configuration.
type Config struct {
	Query      QueryConfig      `yaml:"query"`
	Store      StoreConfig      `yaml:"store"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// QueryConfig describes the scan query to run.
type QueryConfig struct {
	Satellite      string `yaml:"satellite"`       // "G16" | "G17"
	Region         string `yaml:"region"`          // "F" | "C" | "M1" | "M2"
	Start          string `yaml:"start"`           // RFC 3339
	End            string `yaml:"end"`             // RFC 3339, empty = single scan
	CadenceMinutes int    `yaml:"cadence_minutes"` // 0 = region minimum
}

// StartTime parses the configured start time.
func (q QueryConfig) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, q.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start %q: %w", q.Start, err)
	}
	return t.UTC(), nil
}

// EndTime parses the configured end time. A zero time means "single scan".
func (q QueryConfig) EndTime() (time.Time, error) {
	if q.End == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, q.End)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse end %q: %w", q.End, err)
	}
	return t.UTC(), nil
}

// StoreConfig configures the object store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "s3" | "gcs" | "file"
	Bucket     string `yaml:"bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	LocalDir   string `yaml:"local_dir"`
}

// FetchConfig configures retrieval.
type FetchConfig struct {
	DestDir        string `yaml:"dest_dir"`
	MaxConcurrency int    `yaml:"max_concurrency"` // 0 = hardware parallelism
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// CheckpointConfig configures materialize checkpointing.
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads the YAML file named by CONFIG_FILE (if present) and applies
// environment overrides on top.
func Load() (Config, error) {
	cfg := Config{
		Query: QueryConfig{
			Satellite: "G16",
			Region:    "M1",
		},
		Store: StoreConfig{
			Backend:  "s3",
			S3Region: "us-east-1",
		},
		Fetch: FetchConfig{
			DestDir: "./data",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Checkpoint: CheckpointConfig{
			Dir: "./checkpoints",
		},
	}

	path := getenvDefault("CONFIG_FILE", "goes-fetch.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.Query.Start == "" {
		return Config{}, fmt.Errorf("query start time is required")
	}
	if _, err := cfg.Query.StartTime(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Query.EndTime(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad loads the configuration or exits.
func MustLoad() Config {
	log.Println("[config] loading")
	cfg, err := Load()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Query.Satellite, "SATELLITE")
	setString(&cfg.Query.Region, "REGION")
	setString(&cfg.Query.Start, "QUERY_START")
	setString(&cfg.Query.End, "QUERY_END")
	setInt(&cfg.Query.CadenceMinutes, "CADENCE_MINUTES")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.Bucket, "STORE_BUCKET")
	setString(&cfg.Store.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.Store.S3Region, "S3_REGION")
	setString(&cfg.Store.LocalDir, "STORE_LOCAL_DIR")

	setString(&cfg.Fetch.DestDir, "DEST_DIR")
	setInt(&cfg.Fetch.MaxConcurrency, "MAX_CONCURRENCY")

	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Level, "LOG_LEVEL")

	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setString(&cfg.Metrics.Address, "METRICS_ADDRESS")

	setBool(&cfg.Checkpoint.Enabled, "CHECKPOINT_ENABLED")
	setString(&cfg.Checkpoint.Dir, "CHECKPOINT_DIR")
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true"
	}
}
