// Package store defines the durable key-value tier that sits between the
// in-memory dex and the upstream API, plus a registry of backends.
package store

import (
	"context"
	"strings"
)

// Store is durable key -> text storage. Implementations must be safe for
// concurrent use.
type Store interface {
	// Init prepares the backend (schema, connectivity). Safe to call more than once.
	Init(ctx context.Context) error
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	// Keys lists keys starting with prefix. An empty prefix lists every key.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// Options carries the settings for every backend; each factory reads the
// fields it understands.
type Options struct {
	Type string

	// sqlite
	Path string

	// postgres
	DSN string

	// redis
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// KeyPrefix namespaces keys for backends shared with other applications
	KeyPrefix string
}

// EscapeLike escapes SQL LIKE wildcards so prefix matches literally.
// Use with ESCAPE '\'.
func EscapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}
