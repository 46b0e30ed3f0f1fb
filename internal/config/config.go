// Package config defines the configuration for the triarb scanner and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRIARB_* environment variables.
type Config struct {
	Exchange    ExchangeConfig    `toml:"exchange"`
	Scan        ScanConfig        `toml:"scan"`
	Fetch       FetchConfig       `toml:"fetch"`
	Spot        SpotConfig        `toml:"spot"`
	Credentials CredentialsConfig `toml:"credentials"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	Kafka       KafkaConfig       `toml:"kafka"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// ExchangeConfig selects the exchange a triangular scan runs against.
type ExchangeConfig struct {
	ID        string `toml:"id"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Sandbox   bool   `toml:"sandbox"`
	BaseURL   string `toml:"base_url"`
	Depth     int    `toml:"depth"`
}

// ScanConfig holds triangular scan parameters.
type ScanConfig struct {
	MinTradeVolume    float64  `toml:"min_trade_volume"`
	Whitelist         []string `toml:"whitelist"`
	Blacklist         []string `toml:"blacklist"`
	FeeRate           float64  `toml:"fee_rate"`
	Interval          duration `toml:"interval"`
	RankByProfit      bool     `toml:"rank_by_profit"`
	AllEligibleStarts bool     `toml:"all_eligible_starts"`
	Autostart         bool     `toml:"autostart"`
}

// FetchConfig holds order book pacing and retry parameters.
type FetchConfig struct {
	Throttle    duration `toml:"throttle"`
	Concurrency int      `toml:"concurrency"`
	Retries     int      `toml:"retries"`
	Backoff     duration `toml:"backoff"`
	CacheTTL    duration `toml:"cache_ttl"`
}

// SpotConfig holds cross-exchange spread scanner parameters.
type SpotConfig struct {
	Exchanges  []string           `toml:"exchanges"`
	Symbols    []string           `toml:"symbols"`
	OrderSizes map[string]float64 `toml:"order_sizes"`
	MinProfit  float64            `toml:"min_profit"`
	Interval   duration           `toml:"interval"`
}

// CredentialsConfig points at the local credential store.
type CredentialsConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
	MirrorBooks  bool   `toml:"mirror_books"`
}

// KafkaConfig holds the opportunity stream producer parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	RetentionDays   int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per second per client, 0 disables
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	DedupTTL          duration `toml:"dedup_ttl"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			ID:    "paper",
			Depth: 5,
		},
		Scan: ScanConfig{
			MinTradeVolume: 1,
			FeeRate:        0.001,
			Interval:       duration{time.Second},
			RankByProfit:   true,
		},
		Fetch: FetchConfig{
			Throttle:    duration{100 * time.Millisecond},
			Concurrency: 10,
			Retries:     3,
			Backoff:     duration{time.Second},
			CacheTTL:    duration{60 * time.Second},
		},
		Spot: SpotConfig{
			MinProfit: 0,
			Interval:  duration{time.Second},
		},
		Credentials: CredentialsConfig{
			SQLitePath: "triarb.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
			MirrorBooks:  true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "triarb.opportunities",
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "triarb-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			RetentionDays:   30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:   []string{"opportunity", "error"},
			DedupTTL: duration{5 * time.Minute},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"spot":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, spot, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// A triangular scan needs a venue.
	if (mode == "scan" || (mode == "full" && c.Scan.Autostart)) && strings.TrimSpace(c.Exchange.ID) == "" {
		errs = append(errs, "exchange: id must be set for mode "+c.Mode)
	}
	if (c.Exchange.APIKey == "") != (c.Exchange.APISecret == "") {
		errs = append(errs, "exchange: api_key and api_secret must be set together")
	}
	if c.Exchange.Depth < 1 {
		errs = append(errs, "exchange: depth must be >= 1")
	}

	// Scan
	if c.Scan.MinTradeVolume < 0 {
		errs = append(errs, "scan: min_trade_volume must be >= 0")
	}
	if c.Scan.FeeRate < 0 || c.Scan.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("scan: fee_rate must be in [0, 1), got %g", c.Scan.FeeRate))
	}
	if c.Scan.Interval.Duration < 0 {
		errs = append(errs, "scan: interval must not be negative")
	}

	// Fetch
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, "fetch: concurrency must be >= 1")
	}
	if c.Fetch.Retries < 1 {
		errs = append(errs, "fetch: retries must be >= 1")
	}
	if c.Fetch.Throttle.Duration < 0 || c.Fetch.Backoff.Duration < 0 {
		errs = append(errs, "fetch: throttle and backoff must not be negative")
	}
	if c.Fetch.CacheTTL.Duration <= 0 {
		errs = append(errs, "fetch: cache_ttl must be > 0")
	}

	// The cross-exchange scanner compares at least two venues.
	if mode == "spot" && len(c.Spot.Exchanges) < 2 {
		errs = append(errs, "spot: at least two exchanges are required for mode spot")
	}
	if len(c.Spot.Exchanges) == 1 {
		errs = append(errs, "spot: a single exchange has nothing to compare against")
	}
	for sym, size := range c.Spot.OrderSizes {
		if size <= 0 {
			errs = append(errs, fmt.Sprintf("spot: order size for %s must be > 0", sym))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving reads from postgres, which is disabled")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
