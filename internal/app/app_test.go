package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokedex/internal/common/logging"
	"pokedex/internal/config"
	"pokedex/internal/dex"
	"pokedex/internal/middleware"
	"pokedex/internal/store"
)

var roster = map[string]string{"1": "bulbasaur", "4": "charmander", "7": "squirtle"}

// fakePokeAPI serves the listing endpoint and one payload per roster entry.
func fakePokeAPI(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path := strings.TrimPrefix(r.URL.Path, "/api/v2")

		if path == "/pokemon" {
			results := make([]map[string]string, 0, len(roster))
			for id, name := range roster {
				results = append(results, map[string]string{
					"name": name,
					"url":  fmt.Sprintf("%s/api/v2/pokemon/%s/", srv.URL, id),
				})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"count": len(results), "results": results})
			return
		}

		key := strings.TrimPrefix(path, "/pokemon/")
		for id, name := range roster {
			if key == id || key == name {
				fmt.Fprintf(w, `{"id":%s,"name":%q,"height":7,"weight":69,
					"types":[{"slot":1,"type":{"name":"grass"}}],
					"abilities":[{"slot":1,"ability":{"name":"overgrow"}}],
					"stats":[{"base_stat":45,"stat":{"name":"hp"}}]}`, id, name)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	for _, key := range []string{"PORT", "STORE_TYPE", "HYDRATE_ON_START", "RATE_LIMIT_ENABLED"} {
		t.Setenv(key, "")
	}
	cfg := config.Load()
	cfg.StoreType = "memory"
	cfg.UpstreamBaseURL = upstreamURL + "/api/v2"
	cfg.UpstreamRPS = 1000
	cfg.UpstreamBurst = 1000
	cfg.HydrateOnStart = false
	cfg.HydrateDelay = 0
	cfg.StoreConnectTimeout = 2 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWithoutHydration(t *testing.T) {
	upstream, calls := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	assert.True(t, app.Sweeper.IsRunning())
	assert.Zero(t, app.Dex.Size())
	assert.Zero(t, calls.Load())
}

func TestNewHydratesFromIndex(t *testing.T) {
	upstream, _ := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)
	cfg.HydrateOnStart = true

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	require.Eventually(t, func() bool { return app.Dex.Size() == len(roster) }, 5*time.Second, 20*time.Millisecond)

	ids, err := app.Dex.KnownIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 7}, ids)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	upstream, _ := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)
	cfg.StoreType = "cassandra"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestNewWithSQLite(t *testing.T) {
	upstream, calls := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)
	cfg.StoreType = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "pokedex.db")

	first, err := New(cfg)
	require.NoError(t, err)
	_, err = first.Dex.Get(context.Background(), dex.NameKey("squirtle"))
	require.NoError(t, err)
	first.Cleanup()
	fetched := calls.Load()

	// a fresh process finds the record in the store
	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Cleanup()

	r, err := second.Dex.Get(context.Background(), dex.IDKey(7))
	require.NoError(t, err)
	assert.Equal(t, "squirtle", r.Name())
	assert.Equal(t, fetched, calls.Load())

	// ids persisted by the first process stay in the manifest
	_, err = second.Dex.Get(context.Background(), dex.NameKey("bulbasaur"))
	require.NoError(t, err)
	ids, err := second.Dex.KnownIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, ids)
}

func TestCleanupIsIdempotent(t *testing.T) {
	upstream, _ := fakePokeAPI(t)
	app, err := New(testConfig(t, upstream.URL))
	require.NoError(t, err)

	app.Cleanup()
	app.Cleanup()
	assert.False(t, app.Sweeper.IsRunning())
}

func TestHandlerRoutes(t *testing.T) {
	upstream, _ := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	handler, err := app.Handler()
	require.NoError(t, err)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/pokemon?name=Bulbasaur")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"id":1`)

	assert.Equal(t, http.StatusOK, get("/api/pokemon/4").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/pokemon?name=missingno").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/pokemon?id=abc").Code)
	assert.Equal(t, http.StatusOK, get("/health").Code)

	rec = get("/api/pokedex.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "bulbasaur", all[0]["name"])
	assert.Equal(t, "charmander", all[1]["name"])

	rec = get("/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"size":2`)
	assert.Contains(t, rec.Body.String(), `"running":true`)
}

func TestHandlerRateLimitsAPI(t *testing.T) {
	upstream, _ := fakePokeAPI(t)
	cfg := testConfig(t, upstream.URL)
	cfg.RateLimitEnabled = true
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	handler, err := app.Handler()
	require.NoError(t, err)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429}, codes)

	// health stays reachable for probes
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type flakyStore struct {
	store.Store
	failures atomic.Int64
}

func (s *flakyStore) Init(ctx context.Context) error {
	if s.failures.Add(-1) >= 0 {
		return fmt.Errorf("connection refused")
	}
	return s.Store.Init(ctx)
}

func TestConnectStoreRetries(t *testing.T) {
	st, err := store.Create(store.Options{Type: "memory"})
	require.NoError(t, err)

	flaky := &flakyStore{Store: st}
	flaky.failures.Store(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, connectStore(ctx, flaky, logging.NewDefaultLogger()))
	assert.Equal(t, int64(-1), flaky.failures.Load())
}

func TestConnectStoreGivesUpWithContext(t *testing.T) {
	st, err := store.Create(store.Options{Type: "memory"})
	require.NoError(t, err)

	flaky := &flakyStore{Store: st}
	flaky.failures.Store(1 << 30)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, connectStore(ctx, flaky, logging.NewDefaultLogger()))
}
