package upstream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"pokedex/internal/circuitbreaker"
	"pokedex/internal/common/errors"
	commonhttp "pokedex/internal/common/http"
	"pokedex/internal/common/logging"
	"pokedex/internal/common/ratelimit"
)

const DefaultBaseURL = "https://pokeapi.co/api/v2"

var resourceIDPattern = regexp.MustCompile(`/pokemon/(\d+)/?$`)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// IndexLimit is the page size requested from the listing endpoint
	IndexLimit   int
	MaxBodyBytes int64
	RateLimit    ratelimit.Config
	Breaker      circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Timeout:      10 * time.Second,
		IndexLimit:   100000,
		MaxBodyBytes: 8 << 20,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: 20,
			BurstSize:         20,
			Enabled:           true,
		},
		Breaker: circuitbreaker.DefaultConfig(),
	}
}

// Client talks to PokeAPI. Every request waits on the limiter and runs
// through the circuit breaker.
type Client struct {
	baseURL    string
	indexLimit int
	maxBody    int64
	httpClient *http.Client
	limiter    ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	validate   *validator.Validate
	logger     logging.Logger
}

func NewClient(config Config, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.IndexLimit <= 0 {
		config.IndexLimit = defaults.IndexLimit
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid upstream base url: %v", err))
	}

	limiter, err := ratelimit.New(config.RateLimit)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		indexLimit: config.IndexLimit,
		maxBody:    config.MaxBodyBytes,
		httpClient: commonhttp.NewHTTPClient(commonhttp.WithTimeout(config.Timeout)),
		limiter:    limiter,
		breaker:    circuitbreaker.New("pokeapi", config.Breaker, logger),
		validate:   validator.New(),
		logger:     logger.WithFields(logging.Field{Key: "component", Value: "upstream"}),
	}, nil
}

// Breaker exposes the breaker for status reporting
func (c *Client) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

// FetchByIDOrName fetches /pokemon/<key>. Names are lowercased.
func (c *Client) FetchByIDOrName(ctx context.Context, key string) (*RawPokemon, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return nil, errors.ValidationError("pokemon id or name is required")
	}

	var pokemon RawPokemon
	err := c.getJSON(ctx, "/pokemon/"+url.PathEscape(key), "pokemon "+key, &pokemon)
	if err != nil {
		return nil, err
	}

	if err := c.validate.Struct(&pokemon); err != nil {
		return nil, errors.MalformedError("pokemon "+key, err)
	}

	return &pokemon, nil
}

// FetchIndex lists every pokemon the upstream knows about. Entries whose
// resource url carries no numeric id are dropped.
func (c *Client) FetchIndex(ctx context.Context) ([]IndexEntry, error) {
	var page indexPage
	path := fmt.Sprintf("/pokemon?limit=%d&offset=0", c.indexLimit)
	if err := c.getJSON(ctx, path, "pokemon index", &page); err != nil {
		return nil, err
	}

	entries := lo.FilterMap(page.Results, func(r NamedResource, _ int) (IndexEntry, bool) {
		id, ok := ParseResourceID(r.URL)
		return IndexEntry{ID: id, Name: r.Name, URL: r.URL}, ok
	})

	if dropped := len(page.Results) - len(entries); dropped > 0 {
		c.logger.Warn("Index entries without an id were skipped", logging.Int("skipped", dropped))
	}
	c.logger.Info("Fetched pokemon index",
		logging.Int("entries", len(entries)),
		logging.Int("count", page.Count),
	)

	return entries, nil
}

// ParseResourceID extracts the numeric id from a PokeAPI resource url such
// as https://pokeapi.co/api/v2/pokemon/25/.
func ParseResourceID(resourceURL string) (int, bool) {
	m := resourceIDPattern.FindStringSubmatch(resourceURL)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (c *Client) getJSON(ctx context.Context, path, resource string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	var status int
	err := c.breaker.Execute(ctx, func() error {
		resp, err := commonhttp.Get(ctx, c.httpClient, c.baseURL+path,
			map[string]string{"Accept": "application/json"}, c.maxBody)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && stderrors.Is(err, ctxErr) {
				return ctxErr
			}
			return errors.UpstreamError("pokeapi request failed", err)
		}
		status = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errors.NotFoundError(resource)
		case resp.StatusCode == http.StatusTooManyRequests:
			return errors.UpstreamError("pokeapi rate limited", nil).
				WithContext("retry_after", resp.Headers.Get("Retry-After"))
		case resp.StatusCode != http.StatusOK:
			return errors.UpstreamError(fmt.Sprintf("pokeapi returned %d", resp.StatusCode), nil)
		}

		if err := json.Unmarshal(resp.Body, out); err != nil {
			return errors.MalformedError(resource, err)
		}
		return nil
	})

	c.logger.WithContext(ctx).Debug("Upstream request",
		logging.String("path", path),
		logging.Int("status", status),
		logging.Duration("duration", time.Since(start)),
	)

	return err
}
