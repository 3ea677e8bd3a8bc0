package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"pokedex/internal/common/errors"
	"pokedex/internal/dex"
)

// GetPokemon looks up one record by ?id= or ?name=. id wins when both are given.
func (h *Handlers) GetPokemon(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.serveRecord(w, r, key)
}

// GetPokemonByKey serves /api/pokemon/{key} where key is an id or a name
func (h *Handlers) GetPokemonByKey(w http.ResponseWriter, r *http.Request) {
	key, err := dex.ParseKey(mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.serveRecord(w, r, key)
}

func (h *Handlers) serveRecord(w http.ResponseWriter, r *http.Request, key dex.Key) {
	record, err := h.dex.Get(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func keyFromQuery(r *http.Request) (dex.Key, error) {
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return dex.Key{}, errors.ValidationError("id must be a positive integer")
		}
		return dex.IDKey(id), nil
	}

	if name := strings.TrimSpace(query.Get("name")); name != "" {
		return dex.NameKey(name), nil
	}

	return dex.Key{}, errors.ValidationError("id or name is required")
}

// GetPokedex returns every cached record as one JSON array ordered by id
func (h *Handlers) GetPokedex(w http.ResponseWriter, r *http.Request) {
	data, err := h.dex.SerializeAll()
	if err != nil {
		h.writeError(w, r, errors.InternalError("serialize cache", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
