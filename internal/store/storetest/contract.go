// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokedex/internal/store"
)

// Run exercises s against the contract every backend must satisfy.
// s must be initialised and empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		value, ok, err := s.Get(ctx, "record:404")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "record:25", `{"id":25}`))
		value, ok, err := s.Get(ctx, "record:25")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"id":25}`, value)

		require.NoError(t, s.Set(ctx, "record:25", `{"id":25,"name":"pikachu"}`))
		value, _, err = s.Get(ctx, "record:25")
		require.NoError(t, err)
		assert.Equal(t, `{"id":25,"name":"pikachu"}`, value)
	})

	t.Run("empty value is present", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "name:empty", ""))
		value, ok, err := s.Get(ctx, "name:empty")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, value)
		require.NoError(t, s.Del(ctx, "name:empty"))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "name:ditto", "132"))
		require.NoError(t, s.Del(ctx, "name:ditto"))
		_, ok, err := s.Get(ctx, "name:ditto")
		require.NoError(t, err)
		assert.False(t, ok)

		// deleting a missing key is not an error
		require.NoError(t, s.Del(ctx, "name:ditto"))
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "record:1", "a"))
		require.NoError(t, s.Set(ctx, "record:2", "b"))
		require.NoError(t, s.Set(ctx, "name:bulbasaur", "1"))
		require.NoError(t, s.Set(ctx, "name:mr_mime", "122"))
		require.NoError(t, s.Set(ctx, "name:mrxmime", "0"))

		keys, err := s.Keys(ctx, "record:")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"record:1", "record:2", "record:25"}, keys)

		keys, err = s.Keys(ctx, "name:mr_")
		require.NoError(t, err)
		assert.Equal(t, []string{"name:mr_mime"}, keys)

		keys, err = s.Keys(ctx, "")
		require.NoError(t, err)
		assert.Len(t, keys, 6)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, fmt.Sprintf("bulk:%d", i), fmt.Sprint(i)))
			}(i)
		}
		wg.Wait()

		keys, err := s.Keys(ctx, "bulk:")
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, s.Health(ctx))
	})
}
