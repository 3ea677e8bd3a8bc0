package app

import (
	"context"
	"sync"

	"pokedex/internal/common/logging"
	"pokedex/internal/config"
	"pokedex/internal/dex"
	"pokedex/internal/store"
	"pokedex/internal/upstream"
)

// App holds all the application dependencies
type App struct {
	Config   *config.Config
	Store    store.Store
	Upstream *upstream.Client
	Dex      *dex.Dex
	Sweeper  *dex.Sweeper
	Logger   logging.Logger

	hydrateCancel context.CancelFunc
	hydrateWG     sync.WaitGroup
	cleanupOnce   sync.Once
}

// New creates a new application instance with all dependencies. The store is
// reachable and initialized when New returns; hydration and the sweeper run
// in the background.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	// Initialize components in order of dependency
	if err := app.initializeStore(); err != nil {
		return nil, err
	}

	if err := app.initializeUpstream(); err != nil {
		app.Store.Close()
		return nil, err
	}

	app.Dex = dex.New(app.Store, app.Upstream,
		dex.WithLogger(logging.GetGlobalLogger()),
		dex.WithTTLRange(cfg.TTLMin, cfg.TTLMax),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreConnectTimeout)
	err := app.Dex.Init(ctx)
	cancel()
	if err != nil {
		app.Store.Close()
		return nil, err
	}

	if err := app.initializeSweeper(); err != nil {
		app.Store.Close()
		return nil, err
	}

	app.startHydration()
	app.Sweeper.Start()

	app.Logger.Info("Application initialized",
		logging.String("store", cfg.StoreType),
		logging.String("upstream", cfg.UpstreamBaseURL),
		logging.String("sweep_schedule", cfg.SweepSchedule),
	)
	return app, nil
}

func (app *App) initializeUpstream() error {
	upstreamConfig := upstream.DefaultConfig()
	upstreamConfig.BaseURL = app.Config.UpstreamBaseURL
	upstreamConfig.Timeout = app.Config.UpstreamTimeout
	upstreamConfig.RateLimit.RequestsPerSecond = app.Config.UpstreamRPS
	upstreamConfig.RateLimit.BurstSize = app.Config.UpstreamBurst

	client, err := upstream.NewClient(upstreamConfig, logging.GetGlobalLogger())
	if err != nil {
		return err
	}
	app.Upstream = client
	return nil
}

func (app *App) initializeSweeper() error {
	sweeper, err := dex.NewSweeper(app.Dex, dex.SweeperConfig{
		Schedule:  app.Config.SweepSchedule,
		BatchSize: app.Config.SweepBatchSize,
	})
	if err != nil {
		return err
	}
	app.Sweeper = sweeper
	return nil
}

// startHydration preloads the index in the background. Lookups are served
// while it runs.
func (app *App) startHydration() {
	if !app.Config.HydrateOnStart {
		app.Logger.Info("Startup hydration disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.hydrateCancel = cancel

	app.hydrateWG.Add(1)
	go func() {
		defer app.hydrateWG.Done()

		report, err := app.Dex.HydrateFromIndex(ctx, app.Config.HydrateConcurrency, app.Config.HydrateDelay)
		if err != nil {
			if ctx.Err() != nil {
				app.Logger.Info("Startup hydration cancelled")
				return
			}
			app.Logger.Error("Startup hydration failed", err)
			return
		}
		app.Logger.Info("Startup hydration finished",
			logging.Int("requested", report.Requested),
			logging.Int("loaded", report.Loaded),
			logging.Int("failed", report.Failed),
			logging.Duration("duration", report.Duration),
		)
	}()
}

// Cleanup releases all resources. Safe to call more than once.
func (app *App) Cleanup() {
	app.cleanupOnce.Do(func() {
		if app.hydrateCancel != nil {
			app.hydrateCancel()
		}
		app.hydrateWG.Wait()

		if app.Sweeper != nil {
			app.Sweeper.Stop()
		}
		if app.Store != nil {
			if err := app.Store.Close(); err != nil {
				app.Logger.Warn("Error closing store", logging.Err(err))
			}
		}
	})
}
