package redis

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokedex/internal/common/errors"
	"pokedex/internal/store"
	"pokedex/internal/store/storetest"
)

func setupTestStore(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := New(&Config{Address: mr.Addr(), KeyPrefix: prefix})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { s.Close() })

	return s, mr
}

func TestStoreContract(t *testing.T) {
	s, _ := setupTestStore(t, "")
	storetest.Run(t, s)
}

func TestKeyPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, "pokedex:")

	require.NoError(t, s.Set(ctx, "record:25", `{"id":25}`))
	require.NoError(t, mr.Set("other:app", "x"))

	raw, err := mr.Get("pokedex:record:25")
	require.NoError(t, err)
	assert.Equal(t, `{"id":25}`, raw)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"record:25"}, keys)
}

func TestKeysEscapesGlob(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t, "")

	require.NoError(t, s.Set(ctx, "name:a*", "1"))
	require.NoError(t, s.Set(ctx, "name:ab", "2"))

	keys, err := s.Keys(ctx, "name:a*")
	require.NoError(t, err)
	assert.Equal(t, []string{"name:a*"}, keys)
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, "")
	mr.Close()

	_, _, err := s.Get(ctx, "record:1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeStore))
	assert.Error(t, s.Health(ctx))
}

func TestInitFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s, err := New(&Config{Address: addr})
	require.NoError(t, err)
	defer s.Close()

	err = s.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeStore))
}

func TestDefaults(t *testing.T) {
	s, err := New(&Config{})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "localhost:6379", s.config.Address)
	assert.Equal(t, 10, s.config.PoolSize)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := store.Create(store.Options{Type: "redis", RedisAddress: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Init(context.Background()))
}
