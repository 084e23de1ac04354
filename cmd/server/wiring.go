package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/adapter/http/handler"
	"github.com/iho/invitequeue/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/invitequeue/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/invitequeue/internal/adapter/repository/redis"
	"github.com/iho/invitequeue/internal/adapter/repository/sqlite"
	"github.com/iho/invitequeue/internal/infrastructure/config"
	"github.com/iho/invitequeue/internal/infrastructure/gateway"
	"github.com/iho/invitequeue/internal/infrastructure/postgres"
	"github.com/iho/invitequeue/internal/infrastructure/redis"
	"github.com/iho/invitequeue/internal/infrastructure/retry"
	"github.com/iho/invitequeue/internal/infrastructure/settingsfile"
	"github.com/iho/invitequeue/internal/usecase"
)

// stores bundles the repositories of one store driver.
type stores struct {
	txManager usecase.TransactionManager
	users     usecase.UserRepository
	batches   usecase.BatchRepository
	txns      usecase.TransactionRepository
	settings  usecase.SettingsRepository
	retryable retry.Classifier
	checks    []handler.Check
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, logger).Up(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("connected to postgres")

		return &stores{
			txManager: postgresRepo.NewTxManager(pool),
			users:     postgresRepo.NewUserRepository(pool),
			batches:   postgresRepo.NewBatchRepository(pool),
			txns:      postgresRepo.NewTransactionRepository(pool),
			settings:  postgresRepo.NewSettingsRepository(pool),
			retryable: postgresRepo.IsRetryableError,
			checks:    []handler.Check{{Name: "postgres", Ping: pool.Ping}},
			closers:   []func(){pool.Close},
		}, nil

	case config.StoreDriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")

		return &stores{
			txManager: db.TxManager(),
			users:     db.Users(),
			batches:   db.Batches(),
			txns:      db.Transactions(),
			settings:  db.Settings(),
			retryable: sqlite.IsRetryableError,
			checks:    []handler.Check{{Name: "sqlite", Ping: db.Ping}},
			closers:   []func(){func() { _ = db.Close() }},
		}, nil

	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store, state is lost on restart")
		mem := memory.NewStore()
		return &stores{
			txManager: mem.TxManager(),
			users:     mem.Users(),
			batches:   mem.Batches(),
			txns:      mem.Transactions(),
			settings:  mem.Settings(),
			retryable: retry.Always,
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// ephemeral holds the TTL-bound stores: purchase intents and idempotency keys.
type ephemeral struct {
	intents     usecase.IntentStore
	idempotency usecase.IdempotencyStore
	check       *handler.Check
	close       func()
}

func openEphemeral(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*ephemeral, error) {
	if !cfg.RedisEnabled {
		logger.Warn().Msg("redis disabled, intents and idempotency keys are kept in process")
		return &ephemeral{
			intents:     memory.NewIntentStore(),
			idempotency: memory.NewIdempotencyStore(),
			close:       func() {},
		}, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("connected to redis")

	return &ephemeral{
		intents:     redisRepo.NewIntentStore(client),
		idempotency: redisRepo.NewIdempotencyStore(client),
		check:       &handler.Check{Name: "redis", Ping: redisPing(client)},
		close:       func() { _ = client.Close() },
	}, nil
}

func redisPing(client goredis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func newPaymentGateway(cfg *config.Config, logger zerolog.Logger) (usecase.PaymentGateway, error) {
	if cfg.GatewayBaseURL == "" {
		logger.Warn().Msg("GATEWAY_BASE_URL not set, using the static gateway")
		return gateway.NewStaticGateway(fmt.Sprintf("http://localhost:%s", cfg.HTTPPort)), nil
	}

	gw, err := gateway.NewHTTPGateway(gateway.Config{
		BaseURL:         cfg.GatewayBaseURL,
		AccessToken:     cfg.GatewayAccessToken,
		NotificationURL: cfg.GatewayNotificationURL,
		Timeout:         cfg.GatewayTimeout,
		Retry:           retry.DefaultConfig(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// seedSettings writes the settings file into the store without touching
// keys that already have a value.
func seedSettings(ctx context.Context, path string, settings *usecase.SettingsUseCase, logger zerolog.Logger) error {
	if path == "" {
		return nil
	}

	values, err := settingsfile.Load(path)
	if err != nil {
		return err
	}

	seeded, err := settings.SeedSettings(ctx, values)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	logger.Info().Str("file", path).Strs("seeded", seeded).Msg("settings file applied")
	return nil
}
