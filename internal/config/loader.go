package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRIARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyAPIMode picks the exchange key pair by TRIARB_API_MODE. TESTNET
// selects the testnet pair and the sandbox; any other value selects the
// production pair.
func applyAPIMode(cfg *Config) {
	if strings.EqualFold(os.Getenv("TRIARB_API_MODE"), "TESTNET") {
		setStr(&cfg.Exchange.APIKey, "TRIARB_TESTNET_API_KEY")
		setStr(&cfg.Exchange.APISecret, "TRIARB_TESTNET_API_SECRET")
		cfg.Exchange.Sandbox = true
		return
	}
	setStr(&cfg.Exchange.APIKey, "TRIARB_PROD_API_KEY")
	setStr(&cfg.Exchange.APISecret, "TRIARB_PROD_API_SECRET")
}

// applyEnvOverrides reads well-known TRIARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	applyAPIMode(cfg)
	setStr(&cfg.Exchange.ID, "TRIARB_EXCHANGE_ID")
	setStr(&cfg.Exchange.APIKey, "TRIARB_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "TRIARB_EXCHANGE_API_SECRET")
	setBool(&cfg.Exchange.Sandbox, "TRIARB_EXCHANGE_SANDBOX")
	setStr(&cfg.Exchange.BaseURL, "TRIARB_EXCHANGE_BASE_URL")
	setInt(&cfg.Exchange.Depth, "TRIARB_EXCHANGE_DEPTH")

	// ── Scan ──
	setFloat64(&cfg.Scan.MinTradeVolume, "TRIARB_SCAN_MIN_TRADE_VOLUME")
	setStringSlice(&cfg.Scan.Whitelist, "TRIARB_SCAN_WHITELIST")
	setStringSlice(&cfg.Scan.Blacklist, "TRIARB_SCAN_BLACKLIST")
	setFloat64(&cfg.Scan.FeeRate, "TRIARB_SCAN_FEE_RATE")
	setDuration(&cfg.Scan.Interval, "TRIARB_SCAN_INTERVAL")
	setBool(&cfg.Scan.RankByProfit, "TRIARB_SCAN_RANK_BY_PROFIT")
	setBool(&cfg.Scan.AllEligibleStarts, "TRIARB_SCAN_ALL_ELIGIBLE_STARTS")
	setBool(&cfg.Scan.Autostart, "TRIARB_SCAN_AUTOSTART")

	// ── Fetch ──
	setDuration(&cfg.Fetch.Throttle, "TRIARB_FETCH_THROTTLE")
	setInt(&cfg.Fetch.Concurrency, "TRIARB_FETCH_CONCURRENCY")
	setInt(&cfg.Fetch.Retries, "TRIARB_FETCH_RETRIES")
	setDuration(&cfg.Fetch.Backoff, "TRIARB_FETCH_BACKOFF")
	setDuration(&cfg.Fetch.CacheTTL, "TRIARB_FETCH_CACHE_TTL")

	// ── Spot ──
	setStringSlice(&cfg.Spot.Exchanges, "TRIARB_SPOT_EXCHANGES")
	setStringSlice(&cfg.Spot.Symbols, "TRIARB_SPOT_SYMBOLS")
	setFloat64(&cfg.Spot.MinProfit, "TRIARB_SPOT_MIN_PROFIT")
	setDuration(&cfg.Spot.Interval, "TRIARB_SPOT_INTERVAL")

	// ── Credentials ──
	setStr(&cfg.Credentials.SQLitePath, "TRIARB_CREDENTIALS_SQLITE_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRIARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRIARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "TRIARB_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRIARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRIARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRIARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRIARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRIARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRIARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRIARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRIARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRIARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRIARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRIARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRIARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRIARB_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "TRIARB_REDIS_STREAM_MAX_LEN")
	setBool(&cfg.Redis.MirrorBooks, "TRIARB_REDIS_MIRROR_BOOKS")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "TRIARB_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "TRIARB_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "TRIARB_KAFKA_TOPIC")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRIARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRIARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRIARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRIARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRIARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRIARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRIARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRIARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "TRIARB_S3_ARCHIVE_INTERVAL")
	setInt(&cfg.S3.RetentionDays, "TRIARB_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRIARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRIARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRIARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRIARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRIARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRIARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRIARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRIARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRIARB_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.DedupTTL, "TRIARB_NOTIFY_DEDUP_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIARB_MODE")
	setStr(&cfg.LogLevel, "TRIARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
