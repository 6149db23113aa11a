// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Queue    QueueConfig    `mapstructure:"queue"`
	DB       DBConfig       `mapstructure:"db"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP gateway behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PipelineConfig governs stage-runner behavior.
type PipelineConfig struct {
	Prefetch int `mapstructure:"prefetch"`
}

// QueueConfig selects and configures the message queue fabric.
type QueueConfig struct {
	Provider string `mapstructure:"provider"` // pubsub | memory

	ProjectID           string `mapstructure:"project_id"`
	ParseTopic          string `mapstructure:"parse_topic"`
	AnalyzeTopic        string `mapstructure:"analyze_topic"`
	ResultsTopic        string `mapstructure:"results_topic"`
	ParseSubscription   string `mapstructure:"parse_subscription"`
	AnalyzeSubscription string `mapstructure:"analyze_subscription"`
	ResultsSubscription string `mapstructure:"results_subscription"`

	MemoryDepth int `mapstructure:"memory_depth"`
}

// DBConfig controls access to the result store.
type DBConfig struct {
	Provider        string        `mapstructure:"provider"` // postgres | memory
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Provider   string `mapstructure:"provider"` // redis | memory
	Addr       string `mapstructure:"addr"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// ParserConfig governs the parse-stage fetch and render pipeline.
type ParserConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes      int    `mapstructure:"max_body_bytes"`
	HeadlessEnabled   bool   `mapstructure:"headless_enabled"`
	HeadlessParallel  int    `mapstructure:"headless_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// AnalyzerConfig bounds the analyzers' outbound I/O.
type AnalyzerConfig struct {
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	TLSTimeoutSeconds   int `mapstructure:"tls_timeout_seconds"`
	MaxLinkChecks       int `mapstructure:"max_link_checks"`
}

// ArchiveConfig configures the optional raw-HTML snapshot store.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"` // gcs | noop
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CacheTTL returns the configured cache TTL as a duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.prefetch", 10)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.parse_topic", "parse_queue")
	v.SetDefault("queue.analyze_topic", "analyze_queue")
	v.SetDefault("queue.results_topic", "results_queue")
	v.SetDefault("queue.parse_subscription", "parse_queue-sub")
	v.SetDefault("queue.analyze_subscription", "analyze_queue-sub")
	v.SetDefault("queue.results_subscription", "results_queue-sub")
	v.SetDefault("queue.memory_depth", 64)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.table", "analysis_results")
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("parser.user_agent", "pagescope-bot/0.1")
	v.SetDefault("parser.timeout_seconds", 10)
	v.SetDefault("parser.max_body_bytes", 5*1024*1024)
	v.SetDefault("parser.headless_enabled", false)
	v.SetDefault("parser.headless_parallel", 2)
	v.SetDefault("parser.nav_timeout_seconds", 25)
	v.SetDefault("analyzer.fetch_timeout_seconds", 10)
	v.SetDefault("analyzer.tls_timeout_seconds", 5)
	v.SetDefault("analyzer.max_link_checks", 25)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Prefetch <= 0 {
		return fmt.Errorf("pipeline.prefetch must be > 0")
	}
	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("queue.project_id is required for the pubsub provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue provider %q", c.Queue.Provider)
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider %q", c.DB.Provider)
	}
	switch c.Cache.Provider {
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs provider")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown archive provider %q", c.Archive.Provider)
	}
	if c.Parser.TimeoutSeconds <= 0 {
		return fmt.Errorf("parser.timeout_seconds must be > 0")
	}
	if c.Analyzer.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("analyzer.fetch_timeout_seconds must be > 0")
	}
	return nil
}
