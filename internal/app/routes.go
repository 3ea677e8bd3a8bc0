package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"pokedex/internal/common/logging"
	"pokedex/internal/common/ratelimit"
	"pokedex/internal/handlers"
	"pokedex/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, logger logging.Logger, rateLimiter ratelimit.Limiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.Recover(logger))

	// Health check is never rate limited
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	if rateLimiter != nil {
		api.Use(ratelimit.HTTPMiddleware(rateLimiter, ratelimit.IPKey))
	}

	api.HandleFunc("/pokedex.json", h.GetPokedex).Methods(http.MethodGet)
	api.HandleFunc("/pokemon", h.GetPokemon).Methods(http.MethodGet)
	api.HandleFunc("/pokemon/{key}", h.GetPokemonByKey).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
}

// InitializeRateLimiter builds the per-client limiter for the API, or nil when disabled
func (app *App) InitializeRateLimiter() (ratelimit.Limiter, error) {
	if !app.Config.RateLimitEnabled {
		return nil, nil
	}
	return ratelimit.New(ratelimit.Config{
		RequestsPerSecond: app.Config.RateLimitRPS,
		BurstSize:         app.Config.RateLimitBurst,
		Enabled:           true,
	})
}

// Handler builds the fully routed HTTP handler
func (app *App) Handler() (http.Handler, error) {
	rateLimiter, err := app.InitializeRateLimiter()
	if err != nil {
		return nil, err
	}

	h := handlers.New(app.Dex, app.Sweeper, app.Upstream.Breaker(), logging.GetGlobalLogger())

	router := mux.NewRouter()
	SetupRoutes(router, h, logging.GetGlobalLogger(), rateLimiter)
	return router, nil
}
