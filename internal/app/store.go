package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pokedex/internal/common/logging"
	"pokedex/internal/store"

	// backends register themselves with the store registry
	_ "pokedex/internal/store/memory"
	_ "pokedex/internal/store/postgres"
	_ "pokedex/internal/store/redis"
	_ "pokedex/internal/store/sqlite"
)

// storeOptions translates configuration into backend options
func (app *App) storeOptions() store.Options {
	opts := store.Options{Type: app.Config.StoreType}

	switch app.Config.StoreType {
	case "postgres":
		app.Logger.Info("Store: PostgreSQL",
			logging.String("host", app.Config.PostgresHost),
			logging.String("port", app.Config.PostgresPort),
			logging.String("database", app.Config.PostgresDB),
		)
		opts.DSN = app.Config.PostgresDSN()
	case "redis":
		app.Logger.Info("Store: Redis",
			logging.String("address", app.Config.RedisAddress),
			logging.Int("db", app.Config.RedisDB),
		)
		opts.RedisAddress = app.Config.RedisAddress
		opts.RedisPassword = app.Config.RedisPassword
		opts.RedisDB = app.Config.RedisDB
		opts.RedisPoolSize = app.Config.RedisPoolSize
		opts.KeyPrefix = app.Config.RedisKeyPrefix
	case "memory":
		app.Logger.Warn("Store: in-process memory, records will not survive a restart")
	default:
		app.Logger.Info("Store: SQLite", logging.String("path", app.Config.DatabasePath))
		opts.Path = app.Config.DatabasePath
	}

	return opts
}

func (app *App) initializeStore() error {
	st, err := store.Create(app.storeOptions())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.StoreConnectTimeout)
	defer cancel()

	if err := connectStore(ctx, st, app.Logger); err != nil {
		st.Close()
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	app.Store = st
	return nil
}

// connectStore retries Init with exponential backoff until it succeeds or ctx ends.
// Containers often start before their database accepts connections.
func connectStore(ctx context.Context, st store.Store, logger logging.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return st.Init(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("Store not ready, retrying",
			logging.Err(err),
			logging.Duration("retry_in", next),
		)
	})
}
