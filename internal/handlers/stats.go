package handlers

import (
	"net/http"
	"time"

	"pokedex/internal/circuitbreaker"
	"pokedex/internal/dex"
)

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	Size     int                   `json:"size"`
	Sweeper  *dex.SweeperStats     `json:"sweeper,omitempty"`
	Upstream *circuitbreaker.Stats `json:"upstream,omitempty"`
}

// GetStats reports cache size, sweeper activity and upstream breaker state
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Size: h.dex.Size()}

	if h.sweeper != nil {
		stats := h.sweeper.Stats()
		resp.Sweeper = &stats
	}
	if h.breaker != nil {
		stats := h.breaker.Stats()
		resp.Upstream = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports store reachability. An unreachable store is a 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"records":   h.dex.Size(),
		"timestamp": time.Now().UTC(),
	}

	if err := h.dex.Health(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).Error("Store health check failed", err)
		resp["status"] = "unhealthy"
		resp["store"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp["store"] = "ok"
	writeJSON(w, http.StatusOK, resp)
}
