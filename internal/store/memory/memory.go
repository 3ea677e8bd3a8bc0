// Package memory is an in-process store backed by go-cache. Nothing survives
// a restart; it exists for tests and throwaway runs.
package memory

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"pokedex/internal/store"
)

type Store struct {
	cache *gocache.Cache
}

func New() *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

func (s *Store) Init(ctx context.Context) error {
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.cache.Set(key, value, gocache.NoExpiration)
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Health(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.cache.Flush()
	return nil
}

type Factory struct{}

func (f *Factory) Create(opts store.Options) (store.Store, error) {
	return New(), nil
}

func (f *Factory) Type() string {
	return "memory"
}

func init() {
	store.Register(&Factory{})
}
