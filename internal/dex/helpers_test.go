package dex

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"pokedex/internal/common/errors"
	"pokedex/internal/store"
	"pokedex/internal/upstream"
)

func rawPokemon(id int, name string, types ...string) *upstream.RawPokemon {
	return &upstream.RawPokemon{
		ID:     id,
		Name:   name,
		Height: id,
		Weight: id * 10,
		Types: lo.Map(types, func(t string, i int) upstream.TypeSlot {
			return upstream.TypeSlot{Slot: i + 1, Type: upstream.NamedResource{Name: t}}
		}),
		Abilities: []upstream.AbilitySlot{
			{Slot: 1, Ability: upstream.NamedResource{Name: "ability-" + name}},
		},
		Stats: []upstream.StatSlot{
			{BaseStat: 10 + id, Stat: upstream.NamedResource{Name: "hp"}},
			{BaseStat: 20, Stat: upstream.NamedResource{Name: "speed"}},
		},
	}
}

type call struct {
	key   string
	start time.Time
	end   time.Time
}

// fakeSource serves canned pokemon and records every call.
type fakeSource struct {
	mu       sync.Mutex
	byID     map[int]*upstream.RawPokemon
	failures map[string]error
	calls    []call
	delay    time.Duration
	panics   bool

	index    []upstream.IndexEntry
	indexErr error

	total       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeSource(pokemon ...*upstream.RawPokemon) *fakeSource {
	f := &fakeSource{
		byID:     make(map[int]*upstream.RawPokemon),
		failures: make(map[string]error),
	}
	for _, p := range pokemon {
		f.put(p)
	}
	return f
}

func (f *fakeSource) put(p *upstream.RawPokemon) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.ID] = p
}

func (f *fakeSource) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = err
}

func (f *fakeSource) FetchByIDOrName(ctx context.Context, key string) (*upstream.RawPokemon, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		max := f.maxInflight.Load()
		if n <= max || f.maxInflight.CompareAndSwap(max, n) {
			break
		}
	}
	f.total.Add(1)

	c := call{key: key, start: time.Now()}
	defer func() {
		c.end = time.Now()
		f.mu.Lock()
		f.calls = append(f.calls, c)
		f.mu.Unlock()
	}()

	if f.panics {
		panic("upstream exploded")
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key = strings.ToLower(key)
	if err, ok := f.failures[key]; ok {
		return nil, err
	}

	if id, err := strconv.Atoi(key); err == nil {
		if p, ok := f.byID[id]; ok {
			copied := *p
			return &copied, nil
		}
		return nil, errors.NotFoundError("pokemon " + key)
	}

	for _, p := range f.byID {
		if p.Name == key {
			copied := *p
			return &copied, nil
		}
	}
	return nil, errors.NotFoundError("pokemon " + key)
}

func (f *fakeSource) FetchIndex(ctx context.Context) ([]upstream.IndexEntry, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return f.index, nil
}

func (f *fakeSource) recordedCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	store.Store
	failGet bool
	failSet bool
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errors.StoreError("get", key, context.DeadlineExceeded)
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errors.StoreError("set", key, context.DeadlineExceeded)
	}
	return s.Store.Set(ctx, key, value)
}

func idKeys(ids ...int) []Key {
	return lo.Map(ids, func(id int, _ int) Key { return IDKey(id) })
}

func seq(from, to int) []int {
	return lo.RangeFrom(from, to-from+1)
}
