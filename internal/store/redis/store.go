// Package redis keeps records as plain string keys in Redis.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"pokedex/internal/common/errors"
	"pokedex/internal/store"
)

type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
}

type Store struct {
	rdb    *redis.Client
	config *Config
}

func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	return &Store{
		rdb:    rdb,
		config: config,
	}, nil
}

func (s *Store) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.StoreError("ping", "", fmt.Errorf("failed to connect to Redis: %w", err))
	}
	return nil
}

func (s *Store) key(key string) string {
	return s.config.KeyPrefix + key
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.StoreError("get", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return errors.StoreError("set", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.StoreError("del", key, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so large databases are not blocked.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.key(prefix)) + "*"
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.config.KeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.StoreError("keys", prefix, err)
	}
	return keys, nil
}

func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

type Factory struct{}

func (f *Factory) Create(opts store.Options) (store.Store, error) {
	return New(&Config{
		Address:   opts.RedisAddress,
		Password:  opts.RedisPassword,
		DB:        opts.RedisDB,
		PoolSize:  opts.RedisPoolSize,
		KeyPrefix: opts.KeyPrefix,
	})
}

func (f *Factory) Type() string {
	return "redis"
}

func init() {
	store.Register(&Factory{})
}
