package handlers

import (
	"encoding/json"
	"net/http"

	"pokedex/internal/circuitbreaker"
	"pokedex/internal/common/errors"
	"pokedex/internal/common/logging"
	"pokedex/internal/dex"
)

// Handlers serves the pokedex HTTP API
type Handlers struct {
	dex     *dex.Dex
	sweeper *dex.Sweeper
	breaker *circuitbreaker.Breaker
	logger  logging.Logger
}

// New wires the API to a cache. sweeper and breaker are optional and only feed /api/stats.
func New(d *dex.Dex, sweeper *dex.Sweeper, breaker *circuitbreaker.Breaker, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		dex:     d,
		sweeper: sweeper,
		breaker: breaker,
		logger:  logger.WithFields(logging.Field{Key: "component", Value: "api"}),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Only validation and not-found
// messages reach the client; everything else becomes a generic 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Request failed", err,
			logging.String("path", r.URL.Path),
			logging.String("error_type", string(errors.GetType(err))),
		)
	}
	writeJSON(w, status, map[string]string{"error": errors.PublicMessage(err)})
}
