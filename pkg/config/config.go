// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Cache, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// ReindexPerMinute throttles /api/v1/reindex per client; 0 disables.
	ReindexPerMinute int `yaml:"reindexPerMinute"`
}

// IndexConfig controls corpus scanning, decoding and change detection.
type IndexConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	Encodings  []string `yaml:"encodings"`
	Workers    int      `yaml:"workers"`
	// Watch switches the staleness check from a full re-scan per query to
	// fsnotify events.
	Watch bool `yaml:"watch"`
}

// SearchConfig controls BM25 tuning, result limits and snippets.
type SearchConfig struct {
	K1           float64 `yaml:"k1"`
	B            float64 `yaml:"b"`
	DefaultLimit int     `yaml:"defaultLimit"`
	MaxResults   int     `yaml:"maxResults"`
	SnippetWidth int     `yaml:"snippetWidth"`
}

// CacheConfig selects the result cache backend: "none", "lru" or "redis".
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AnalyticsConfig controls search-event collection and where events go.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	PublishToKafka   bool          `yaml:"publishToKafka"`
	PersistSnapshots bool          `yaml:"persistSnapshots"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// SnapshotRetention caps stored snapshots per root; 0 keeps all.
	SnapshotRetention int `yaml:"snapshotRetention"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port starts a dedicated metrics listener when positive; otherwise
	// /metrics is served by the main server.
	Port int `yaml:"port"`
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for a single local user.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			Extensions: []string{".md", ".txt", ".html", ".htm"},
			Encodings:  []string{"utf-8", "utf-8-sig", "latin-1"},
			Workers:    4,
		},
		Search: SearchConfig{
			K1:           1.5,
			B:            0.75,
			DefaultLimit: 20,
			MaxResults:   200,
			SnippetWidth: 240,
		},
		Cache: CacheConfig{
			Backend: "lru",
			Size:    512,
			TTL:     60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "searchbox-events",
			ConsumerGroup: "searchbox-tail",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchbox",
			User:            "searchbox",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:           true,
			BufferSize:        1024,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 1440,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects values the engine cannot work with.
func (c *Config) Validate() error {
	if c.Search.K1 < 0 {
		return fmt.Errorf("search.k1 must be non-negative, got %v", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be within [0, 1], got %v", c.Search.B)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Search.SnippetWidth <= 0 {
		return fmt.Errorf("search.snippetWidth must be positive, got %d", c.Search.SnippetWidth)
	}
	if len(c.Index.Extensions) == 0 {
		return fmt.Errorf("index.extensions must not be empty")
	}
	switch c.Cache.Backend {
	case "", "none", "lru", "redis":
	default:
		return fmt.Errorf("cache.backend must be one of none, lru, redis; got %q", c.Cache.Backend)
	}
	if c.Analytics.SnapshotRetention < 0 {
		return fmt.Errorf("analytics.snapshotRetention must be non-negative, got %d", c.Analytics.SnapshotRetention)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// applyEnvOverrides reads SB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SB_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SB_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SB_INDEX_ROOT"); v != "" {
		cfg.Index.Root = v
	}
	if v := os.Getenv("SB_INDEX_EXTENSIONS"); v != "" {
		cfg.Index.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("SB_INDEX_ENCODINGS"); v != "" {
		cfg.Index.Encodings = strings.Split(v, ",")
	}
	if v := os.Getenv("SB_INDEX_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Watch = watch
		}
	}
	if v := os.Getenv("SB_SEARCH_DEFAULT_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Search.DefaultLimit = limit
		}
	}
	if v := os.Getenv("SB_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SB_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SB_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SB_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
