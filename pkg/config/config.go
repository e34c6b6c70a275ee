// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Index, Analyzer, Ingest, Search, Server, Redis, Kafka, Catalog, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// OpenMode selects how the index directory is treated when a writer opens it.
type OpenMode string

const (
	// ModeCreate discards any previously committed snapshot.
	ModeCreate OpenMode = "create"
	// ModeAppend loads the latest committed snapshot and keeps adding to it.
	ModeAppend OpenMode = "append"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Search   SearchConfig   `yaml:"search"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexConfig controls where the index lives and how snapshots are written.
type IndexConfig struct {
	DataDir     string   `yaml:"dataDir"`
	Mode        OpenMode `yaml:"mode"`
	Compression string   `yaml:"compression"`
}

// AnalyzerConfig describes the text normalisation pipeline. A nil StopWords
// slice selects the built-in list for Language; an empty one disables
// stop-word removal.
type AnalyzerConfig struct {
	Language       string   `yaml:"language" json:"language"`
	StopWords      []string `yaml:"stopWords" json:"stop_words"`
	MinTokenLength int      `yaml:"minTokenLength" json:"min_token_length"`
}

// IngestConfig controls file enumeration and per-document limits.
type IngestConfig struct {
	Extensions       []string `yaml:"extensions"`
	MaxDocumentBytes int64    `yaml:"maxDocumentBytes"`
}

// SearchConfig controls query result limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxResults   int `yaml:"maxResults"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// Timeout bounds each cache call; FailureThreshold consecutive failures
	// bypass the cache for ResetTimeout.
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// KafkaConfig holds broker and topic settings for commit notifications. No
// brokers means notifications are disabled.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexCommits string `yaml:"indexCommits"`
}

// CatalogConfig selects the SQL database recording ingest outcomes. An empty
// Driver disables the catalog.
type CatalogConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	dir, err := homedir.Expand(cfg.Index.DataDir)
	if err != nil {
		return nil, fmt.Errorf("expanding data dir %s: %w", cfg.Index.DataDir, err)
	}
	cfg.Index.DataDir = dir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local use.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			DataDir:     "index",
			Mode:        ModeCreate,
			Compression: "zstd",
		},
		Analyzer: AnalyzerConfig{
			Language:       "english",
			MinTokenLength: 1,
		},
		Ingest: IngestConfig{
			Extensions:       []string{".htm", ".html", ".xml", ".txt"},
			MaxDocumentBytes: 16 << 20,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
			MaxResults:   100,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:         10,
			CacheTTL:         60 * time.Second,
			Timeout:          100 * time.Millisecond,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "filesearch",
			Topics: KafkaTopics{
				IndexCommits: "index-commits",
			},
		},
		Catalog: CatalogConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate reports the first configuration value that cannot be used.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Index.DataDir) == "" {
		return fmt.Errorf("index.dataDir must not be empty")
	}
	switch c.Index.Mode {
	case ModeCreate, ModeAppend:
	default:
		return fmt.Errorf("index.mode %q must be %q or %q", c.Index.Mode, ModeCreate, ModeAppend)
	}
	switch c.Index.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("index.compression %q must be none, lz4 or zstd", c.Index.Compression)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive")
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Ingest.MaxDocumentBytes <= 0 {
		return fmt.Errorf("ingest.maxDocumentBytes must be positive")
	}
	return nil
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("FS_INDEX_MODE"); v != "" {
		cfg.Index.Mode = OpenMode(v)
	}
	if v := os.Getenv("FS_INDEX_COMPRESSION"); v != "" {
		cfg.Index.Compression = v
	}
	if v := os.Getenv("FS_ANALYZER_LANGUAGE"); v != "" {
		cfg.Analyzer.Language = v
	}
	if v := os.Getenv("FS_INGEST_EXTENSIONS"); v != "" {
		cfg.Ingest.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_CATALOG_DRIVER"); v != "" {
		cfg.Catalog.Driver = v
	}
	if v := os.Getenv("FS_CATALOG_DSN"); v != "" {
		cfg.Catalog.DSN = v
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
