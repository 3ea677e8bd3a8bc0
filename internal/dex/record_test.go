package dex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokedex/internal/common/errors"
)

func TestRecord_TTLWithinBounds(t *testing.T) {
	e := defaultExpiry()
	for i := 0; i < 1000; i++ {
		ttl := e.drawTTL()
		assert.GreaterOrEqual(t, ttl, 12*time.Hour)
		assert.LessOrEqual(t, ttl, 7*24*time.Hour)
	}
}

func TestRecord_TTLExtremes(t *testing.T) {
	e := defaultExpiry()

	e.int64n = func(n int64) int64 { return 0 }
	assert.Equal(t, DefaultTTLMin, e.drawTTL())

	e.int64n = func(n int64) int64 { return n - 1 }
	assert.Equal(t, DefaultTTLMax, e.drawTTL())

	e.min, e.max = time.Hour, time.Hour
	assert.Equal(t, time.Hour, e.drawTTL())
}

func TestRecord_NotExpiredBeforeMinimumTTL(t *testing.T) {
	clock := newFakeClock()
	// every draw lands on the minimum, the tightest case
	d, _ := newTestDex(t, newFakeSource(rawPokemon(1, "bulbasaur")),
		WithClock(clock.Now),
		WithRandom(func(n int64) int64 { return 0 }),
	)

	r, err := d.Get(context.Background(), IDKey(1))
	require.NoError(t, err)
	assert.False(t, r.IsExpired())

	clock.Advance(6 * time.Hour)
	assert.False(t, r.IsExpired())

	clock.Advance(6 * time.Hour)
	assert.False(t, r.IsExpired(), "exactly ttl elapsed is not yet expired")

	clock.Advance(time.Millisecond)
	assert.True(t, r.IsExpired())

	_, err = d.Reload(context.Background(), IDKey(1))
	require.NoError(t, err)
	assert.False(t, r.IsExpired())
	assert.Equal(t, clock.Now(), r.LastAccess())
}

func TestRecord_RandomizedTTLNeverExpiresEarly(t *testing.T) {
	clock := newFakeClock()
	e := defaultExpiry()
	e.now = clock.Now

	for id := 1; id <= 50; id++ {
		r := newRecordFromRaw(rawPokemon(id, "mon", "normal"), e)
		assert.False(t, r.IsExpired())
		assert.False(t, r.IsExpiredAt(clock.Now().Add(DefaultTTLMin)))
		assert.True(t, r.IsExpiredAt(clock.Now().Add(DefaultTTLMax+time.Nanosecond)))
	}
}

func TestRecord_NewIsDirty(t *testing.T) {
	r := newRecordFromRaw(rawPokemon(25, "pikachu", "electric"), defaultExpiry())
	assert.True(t, r.IsDirty())
	r.markClean()
	assert.False(t, r.IsDirty())
}

func TestRecord_Helpers(t *testing.T) {
	r := newRecordFromRaw(rawPokemon(6, "charizard", "fire", "flying"), defaultExpiry())

	primary, ok := r.PrimaryType()
	assert.True(t, ok)
	assert.Equal(t, "fire", primary)
	assert.Equal(t, 16+20, r.TotalBaseStats())

	typeless := newRecordFromRaw(rawPokemon(0, "glitch"), defaultExpiry())
	_, ok = typeless.PrimaryType()
	assert.False(t, ok)
}

func TestRecord_DataIsACopy(t *testing.T) {
	r := newRecordFromRaw(rawPokemon(6, "charizard", "fire", "flying"), defaultExpiry())

	d := r.Data()
	d.Types[0] = "water"
	d.BaseStats["hp"] = 1

	assert.Equal(t, []string{"fire", "flying"}, r.Data().Types)
	assert.Equal(t, 16, r.Data().BaseStats["hp"])
}

func TestRecord_FailedReloadKeepsState(t *testing.T) {
	src := newFakeSource(rawPokemon(25, "pikachu", "electric"))
	r := newRecordFromRaw(rawPokemon(25, "pikachu", "electric"), defaultExpiry())
	before := r.Data()
	ttl, lastAccess := r.TTL(), r.LastAccess()

	src.fail("25", errors.UpstreamError("pokeapi returned 502", nil))
	err := r.Reload(context.Background(), src)
	require.Error(t, err)

	assert.Equal(t, before, r.Data())
	assert.Equal(t, ttl, r.TTL())
	assert.Equal(t, lastAccess, r.LastAccess())
}

func TestRecord_ReloadRejectsDifferentID(t *testing.T) {
	src := newFakeSource(rawPokemon(26, "raichu", "electric"))
	r := newRecordFromRaw(rawPokemon(25, "pikachu", "electric"), defaultExpiry())

	src.mu.Lock()
	src.byID[25] = rawPokemon(26, "raichu", "electric")
	src.mu.Unlock()

	err := r.Reload(context.Background(), src)
	assert.True(t, errors.IsType(err, errors.ErrTypeMalformed))
	assert.Equal(t, "pikachu", r.Name())
}

func TestRecord_MarshalJSONIsPublicView(t *testing.T) {
	r := newRecordFromRaw(rawPokemon(25, "pikachu", "electric"), defaultExpiry())

	out, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 25,
		"name": "pikachu",
		"height": 25,
		"weight": 250,
		"types": ["electric"],
		"abilities": ["ability-pikachu"],
		"baseStats": {"hp": 35, "speed": 20}
	}`, string(out))
}
