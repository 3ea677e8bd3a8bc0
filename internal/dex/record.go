package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"pokedex/internal/common/errors"
	"pokedex/internal/upstream"
)

const (
	DefaultTTLMin = 12 * time.Hour
	DefaultTTLMax = 7 * 24 * time.Hour
)

// Attributes are the descriptive fields refreshed from upstream
type Attributes struct {
	Height    int            `json:"height"`
	Weight    int            `json:"weight"`
	Types     []string       `json:"types"`
	Abilities []string       `json:"abilities"`
	BaseStats map[string]int `json:"baseStats"`
}

// Data is the public view of a record. It carries no staleness state.
type Data struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required"`
	Attributes
}

// storedRecord is the persisted blob. Times are unix milliseconds.
type storedRecord struct {
	Data
	LastAccess int64 `json:"lastAccess" validate:"gte=0"`
	TTL        int64 `json:"ttl" validate:"gte=0"`
}

// expiry draws TTLs and tells the time for every record of one Dex.
type expiry struct {
	now    func() time.Time
	min    time.Duration
	max    time.Duration
	int64n func(n int64) int64
}

func defaultExpiry() *expiry {
	return &expiry{
		now:    time.Now,
		min:    DefaultTTLMin,
		max:    DefaultTTLMax,
		int64n: rand.Int63n,
	}
}

// drawTTL picks a TTL uniformly from [min, max].
func (e *expiry) drawTTL() time.Duration {
	span := int64(e.max - e.min)
	if span <= 0 {
		return e.min
	}
	return e.min + time.Duration(e.int64n(span+1))
}

// Record is one cached pokemon. All fields change together through Reload.
type Record struct {
	mu         sync.RWMutex
	data       Data
	lastAccess time.Time
	ttl        time.Duration
	dirty      bool
	expiry     *expiry
}

func newRecordFromRaw(raw *upstream.RawPokemon, e *expiry) *Record {
	r := &Record{expiry: e}
	r.apply(raw)
	return r
}

func dataFromRaw(raw *upstream.RawPokemon) Data {
	return Data{
		ID:   raw.ID,
		Name: raw.Name,
		Attributes: Attributes{
			Height:    raw.Height,
			Weight:    raw.Weight,
			Types:     raw.TypeNames(),
			Abilities: raw.AbilityNames(),
			BaseStats: raw.BaseStats(),
		},
	}
}

// apply overwrites every attribute and re-randomizes the TTL. Caller holds
// the write lock or owns r exclusively.
func (r *Record) apply(raw *upstream.RawPokemon) {
	r.data = dataFromRaw(raw)
	r.lastAccess = r.expiry.now()
	r.ttl = r.expiry.drawTTL()
	r.dirty = true
}

func (r *Record) ID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.ID
}

func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Name
}

// Data returns a copy of the public fields
func (r *Record) Data() Data {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.data
	d.Types = slices.Clone(r.data.Types)
	d.Abilities = slices.Clone(r.data.Abilities)
	d.BaseStats = maps.Clone(r.data.BaseStats)
	return d
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Data())
}

func (r *Record) LastAccess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastAccess
}

func (r *Record) TTL() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ttl
}

// IsDirty reports whether the record has changes not yet persisted
func (r *Record) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

func (r *Record) markClean() {
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
}

func (r *Record) IsExpired() bool {
	return r.IsExpiredAt(r.expiry.now())
}

// IsExpiredAt reports whether now - lastAccess > ttl
func (r *Record) IsExpiredAt(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return now.Sub(r.lastAccess) > r.ttl
}

// PrimaryType returns the first-slot type, if any
func (r *Record) PrimaryType() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.data.Types) == 0 {
		return "", false
	}
	return r.data.Types[0], true
}

func (r *Record) TotalBaseStats() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Sum(lo.Values(r.data.BaseStats))
}

// Reload re-fetches the record by id and overwrites it. On failure the
// record keeps its previous data and TTL.
func (r *Record) Reload(ctx context.Context, src upstream.Source) error {
	id := r.ID()
	raw, err := src.FetchByIDOrName(ctx, strconv.Itoa(id))
	if err != nil {
		return err
	}
	if raw.ID != id {
		return errors.MalformedError(recordKey(id),
			fmt.Errorf("upstream returned id %d", raw.ID))
	}

	r.mu.Lock()
	r.apply(raw)
	r.mu.Unlock()
	return nil
}

func (r *Record) marshalStored() (string, error) {
	r.mu.RLock()
	stored := storedRecord{
		Data:       r.data,
		LastAccess: r.lastAccess.UnixMilli(),
		TTL:        r.ttl.Milliseconds(),
	}
	blob, err := json.Marshal(stored)
	r.mu.RUnlock()

	if err != nil {
		return "", err
	}
	return string(blob), nil
}
