package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/triarb/internal/blob/s3"
	"github.com/alanyoungcy/triarb/internal/cache/redis"
	"github.com/alanyoungcy/triarb/internal/config"
	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/exchange/binance"
	"github.com/alanyoungcy/triarb/internal/exchange/gate"
	"github.com/alanyoungcy/triarb/internal/exchange/memory"
	"github.com/alanyoungcy/triarb/internal/notify"
	"github.com/alanyoungcy/triarb/internal/store/postgres"
	"github.com/alanyoungcy/triarb/internal/store/sqlite"
	"github.com/alanyoungcy/triarb/internal/stream/kafka"
)

// Dependencies bundles every collaborator the modes need. Optional backends
// are nil when disabled in config.
type Dependencies struct {
	Exchanges   *exchange.Registry
	Credentials domain.CredentialStore

	// Postgres
	Opportunities *postgres.OpportunityStore

	// Redis
	Mirror  domain.OrderBookMirror
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Kafka
	Publisher domain.Publisher

	// S3
	Archiver *s3blob.OpportunityArchiver

	Notifier *notify.Notifier
}

// NewRegistry returns a registry with every built-in connector.
func NewRegistry() *exchange.Registry {
	reg := exchange.NewRegistry()
	reg.Register(gate.ID, gate.Factory)
	reg.Register(binance.ID, binance.Factory)
	reg.Register(memory.ID, memory.Factory)
	return reg
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Exchanges: NewRegistry()}

	// --- SQLite credential store ---
	if cfg.Credentials.SQLitePath != "" {
		store, err := sqlite.Open(cfg.Credentials.SQLitePath)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		if err := store.CreateTables(ctx); err != nil {
			return fail("sqlite tables", err)
		}
		deps.Credentials = store
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Opportunities = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Redis.MirrorBooks {
			deps.Mirror = redis.NewBookMirror(redisClient)
		}
		deps.Bus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub, err := kafka.New(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return fail("kafka", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
	}

	// --- S3 archive (needs Postgres as its source) ---
	if cfg.S3.Enabled {
		if deps.Opportunities == nil {
			logger.WarnContext(ctx, "s3 enabled without postgres, archiver disabled")
		} else {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				return fail("s3", err)
			}
			closers = append(closers, func() { _ = s3Client.Close() })
			if err := s3Client.Health(ctx); err != nil {
				logger.WarnContext(ctx, "s3 bucket not reachable yet", slog.String("error", err.Error()))
			}
			deps.Archiver = s3blob.NewOpportunityArchiver(
				s3blob.NewWriter(s3Client),
				deps.Opportunities,
				s3blob.WithPruner(deps.Opportunities),
				s3blob.WithArchiveLogger(logger),
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// resolveCredentials returns creds when set, then the configured exchange
// key, then the credential store. Nothing found yields empty credentials,
// which public-only connectors accept.
func resolveCredentials(ctx context.Context, cfg *config.Config, store domain.CredentialStore, id string, creds domain.Credentials) (domain.Credentials, error) {
	if !creds.Empty() {
		return creds, nil
	}
	if id == cfg.Exchange.ID && (cfg.Exchange.APIKey != "" || cfg.Exchange.APISecret != "") {
		return domain.Credentials{APIKey: cfg.Exchange.APIKey, APISecret: cfg.Exchange.APISecret}, nil
	}
	if store == nil {
		return domain.Credentials{}, nil
	}
	stored, err := store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Credentials{}, nil
	}
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credentials for %s: %w", id, err)
	}
	return stored, nil
}

// configuredOpener applies the configured base URL and depth to the
// exchange named in config.
type configuredOpener struct {
	reg *exchange.Registry
	cfg *config.Config
}

func (o configuredOpener) Open(id string, creds domain.Credentials, opts exchange.Options) (domain.Exchange, error) {
	if id == o.cfg.Exchange.ID {
		if opts.BaseURL == "" {
			opts.BaseURL = o.cfg.Exchange.BaseURL
		}
		if opts.Depth <= 0 {
			opts.Depth = o.cfg.Exchange.Depth
		}
	}
	return o.reg.Open(id, creds, opts)
}
