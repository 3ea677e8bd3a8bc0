package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 100, config.MaxIdleConns)
	assert.Equal(t, 10, config.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, config.IdleConnTimeout)
	assert.False(t, config.DisableKeepAlives)
	assert.Equal(t, "pokedex/1.0", config.UserAgent)
	assert.Nil(t, config.Transport)
}

func TestOptions(t *testing.T) {
	config := DefaultClientConfig()
	WithTimeout(5 * time.Second)(&config)
	WithMaxIdleConnsPerHost(3)(&config)
	WithoutKeepAlives()(&config)
	WithUserAgent("test-agent")(&config)

	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, 3, config.MaxIdleConnsPerHost)
	assert.True(t, config.DisableKeepAlives)
	assert.Equal(t, "test-agent", config.UserAgent)
	// untouched
	assert.Equal(t, 100, config.MaxIdleConns)
}

func TestNewHTTPClient_SetsUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(WithUserAgent("pokedex-test"), WithTimeout(time.Second))
	assert.Equal(t, time.Second, client.Timeout)

	resp, err := Get(context.Background(), client, server.URL, nil, 1024)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pokedex-test", got)
}

func TestGet_ExplicitHeaderWins(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	_, err := Get(context.Background(), NewHTTPClient(), server.URL, map[string]string{"User-Agent": "custom"}, 1024)
	require.NoError(t, err)
	assert.Equal(t, "custom", got)
}

func TestGet_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	client := NewHTTPClient()

	resp, err := Get(context.Background(), client, server.URL, nil, 100)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 100)

	_, err = Get(context.Background(), client, server.URL, nil, 99)
	assert.Error(t, err)
}

func TestGet_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Get(ctx, NewHTTPClient(), server.URL, nil, 1024)
	assert.ErrorIs(t, err, context.Canceled)
}
