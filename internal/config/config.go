// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Egress   EgressConfig   `mapstructure:"egress"`
	Sink     SinkConfig     `mapstructure:"sink"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs the two-phase crawl itself.
type CrawlerConfig struct {
	IndexURL     string   `mapstructure:"index_url"`
	TopK         int      `mapstructure:"top_k"`
	CastLimit    int      `mapstructure:"cast_limit"`
	Concurrency  int      `mapstructure:"concurrency"`
	DelaySeconds int      `mapstructure:"delay_seconds"`
	UserAgents   []string `mapstructure:"user_agents"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ThrottleConfig controls the adaptive delay loop.
type ThrottleConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	TargetConcurrency float64 `mapstructure:"target_concurrency"`
	MaxDelaySeconds   int     `mapstructure:"max_delay_seconds"`
}

// EgressConfig holds the proxy route pool. An empty pool disables rotation.
type EgressConfig struct {
	Routes                 []string `mapstructure:"routes"`
	FailureCooldownSeconds int      `mapstructure:"failure_cooldown_seconds"`
}

// SinkConfig sets the CSV output location.
type SinkConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	CSVEnabled bool   `mapstructure:"csv_enabled"`
}

// DBConfig controls the relational sink; an empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig controls raw page snapshots. When GCSBucket is set the GCS
// store is used, otherwise the local directory.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.index_url", "https://www.imdb.com/chart/top/")
	v.SetDefault("crawler.top_k", 50)
	v.SetDefault("crawler.cast_limit", 3)
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("http.timeout_seconds", 90)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("throttle.enabled", true)
	v.SetDefault("throttle.target_concurrency", 1.0)
	v.SetDefault("throttle.max_delay_seconds", 60)
	v.SetDefault("egress.failure_cooldown_seconds", 30)
	v.SetDefault("sink.output_dir", "data")
	v.SetDefault("sink.csv_enabled", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "data/pages")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.IndexURL == "" {
		return fmt.Errorf("crawler.index_url must be set")
	}
	if c.Crawler.TopK <= 0 {
		return fmt.Errorf("crawler.top_k must be > 0")
	}
	if c.Crawler.CastLimit < 0 {
		return fmt.Errorf("crawler.cast_limit must be >= 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Throttle.TargetConcurrency <= 0 {
		return fmt.Errorf("throttle.target_concurrency must be > 0")
	}
	if !c.Sink.CSVEnabled && c.DB.DSN == "" {
		return fmt.Errorf("at least one sink must be enabled (sink.csv_enabled or db.dsn)")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the ops server is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestDelay converts the fixed per-request delay into a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds) * time.Second
}
