// Package dex is the tiered pokemon cache: memory, then the durable store,
// then upstream. It also owns bulk hydration and the background sweeper.
package dex

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"pokedex/internal/common/errors"
	"pokedex/internal/common/logging"
	"pokedex/internal/store"
	"pokedex/internal/upstream"
)

// Dex holds the id and name indexes over cached records. Both indexes
// always point at the same *Record for a given pokemon.
type Dex struct {
	store    store.Store
	source   upstream.Source
	logger   logging.Logger
	expiry   *expiry
	validate *validator.Validate

	mu     sync.RWMutex
	byID   map[int]*Record
	byName map[string]*Record

	fills       singleflight.Group
	fillTimeout time.Duration

	manifestMu sync.Mutex
	known      map[int]struct{}
}

// DefaultFillTimeout bounds one shared store/upstream fill
const DefaultFillTimeout = 30 * time.Second

type Option func(*Dex)

func WithLogger(logger logging.Logger) Option {
	return func(d *Dex) {
		d.logger = logger
	}
}

// WithClock replaces time.Now for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(d *Dex) {
		d.expiry.now = now
	}
}

// WithTTLRange sets the bounds TTLs are drawn from
func WithTTLRange(min, max time.Duration) Option {
	return func(d *Dex) {
		d.expiry.min = min
		d.expiry.max = max
	}
}

// WithFillTimeout bounds a shared fill. The fill outlives any single caller.
func WithFillTimeout(timeout time.Duration) Option {
	return func(d *Dex) {
		d.fillTimeout = timeout
	}
}

// WithRandom replaces the source of TTL jitter; int64n must return a value in [0, n).
func WithRandom(int64n func(n int64) int64) Option {
	return func(d *Dex) {
		d.expiry.int64n = int64n
	}
}

func New(st store.Store, src upstream.Source, opts ...Option) *Dex {
	d := &Dex{
		store:       st,
		source:      src,
		logger:      logging.GetGlobalLogger(),
		expiry:      defaultExpiry(),
		validate:    validator.New(),
		fillTimeout: DefaultFillTimeout,
		byID:        make(map[int]*Record),
		byName:      make(map[string]*Record),
		known:       make(map[int]struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.fillTimeout <= 0 {
		d.fillTimeout = DefaultFillTimeout
	}
	if d.expiry.max < d.expiry.min {
		d.expiry.max = d.expiry.min
	}
	d.logger = d.logger.WithFields(logging.Field{Key: "component", Value: "dex"})

	return d
}

// Init prepares the backing store and picks up the ids persisted by earlier
// runs so the manifest keeps growing across restarts.
func (d *Dex) Init(ctx context.Context) error {
	if err := d.store.Init(ctx); err != nil {
		return err
	}

	ids, err := d.KnownIDs(ctx)
	if err != nil {
		if !errors.IsType(err, errors.ErrTypeMalformed) {
			return err
		}
		d.logger.Warn("Ignoring unreadable manifest", logging.Err(err))
		return nil
	}

	d.manifestMu.Lock()
	for _, id := range ids {
		d.known[id] = struct{}{}
	}
	d.manifestMu.Unlock()
	return nil
}

// Peek returns the in-memory record for key without any I/O
func (d *Dex) Peek(key Key) *Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if key.IsID() {
		return d.byID[key.ID()]
	}
	return d.byName[key.Name()]
}

// Get resolves key through memory, the store and finally upstream.
// Concurrent fills for the same key share one resolution. The shared fill is
// detached from the caller that started it, so an abandoned wait never fails
// the other callers; each caller stops waiting when its own ctx ends.
func (d *Dex) Get(ctx context.Context, key Key) (*Record, error) {
	if !key.valid() {
		return nil, errors.ValidationError("id must be a positive integer")
	}
	if r := d.Peek(key); r != nil {
		return r, nil
	}

	ch := d.fills.DoChan(key.String(), func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.fillTimeout)
		defer cancel()
		return d.fill(fillCtx, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Record), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dex) fill(ctx context.Context, key Key) (*Record, error) {
	if r := d.Peek(key); r != nil {
		return r, nil
	}

	r, err := d.loadFromStore(ctx, key)
	if err != nil {
		return nil, err
	}
	if r != nil {
		d.logger.Debug("Loaded from store", logging.String("key", key.String()))
		return d.insert(r), nil
	}

	raw, err := d.source.FetchByIDOrName(ctx, key.String())
	if err != nil {
		return nil, err
	}

	// another key may have resolved the same pokemon meanwhile
	if existing := d.Peek(IDKey(raw.ID)); existing != nil {
		return existing, nil
	}

	r = newRecordFromRaw(raw, d.expiry)
	if err := d.persist(ctx, r); err != nil {
		return nil, err
	}

	d.logger.Debug("Fetched from upstream",
		logging.String("key", key.String()),
		logging.Int("id", raw.ID),
	)
	return d.insert(r), nil
}

// insert adds r to both indexes unless its id is already present, in which
// case the existing instance wins and is returned.
func (d *Dex) insert(r *Record) *Record {
	data := r.Data()

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byID[data.ID]; ok {
		return existing
	}
	d.byID[data.ID] = r
	d.byName[strings.ToLower(data.Name)] = r
	return r
}

// Reload refreshes the record for key from upstream and persists it. A key
// not yet cached is filled instead.
func (d *Dex) Reload(ctx context.Context, key Key) (*Record, error) {
	r := d.Peek(key)
	if r == nil {
		return d.Get(ctx, key)
	}
	if err := d.refresh(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// refresh reloads r, fixes the name index if the name changed, then persists.
// A stale name mapping is removed from the store once the new one is written.
func (d *Dex) refresh(ctx context.Context, r *Record) error {
	oldName := strings.ToLower(r.Name())
	if err := r.Reload(ctx, d.source); err != nil {
		return err
	}

	newName := strings.ToLower(r.Name())
	if newName != oldName {
		d.mu.Lock()
		if d.byName[oldName] == r {
			delete(d.byName, oldName)
		}
		d.byName[newName] = r
		d.mu.Unlock()
	}

	if err := d.persist(ctx, r); err != nil {
		return err
	}
	if newName != oldName {
		return d.dropNameMapping(ctx, oldName, r.ID())
	}
	return nil
}

// Size is the number of distinct records in memory
func (d *Dex) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// All returns the cached records ordered by id
func (d *Dex) All() []*Record {
	d.mu.RLock()
	ids := make([]int, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	records := make([]*Record, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		records = append(records, d.byID[id])
	}
	d.mu.RUnlock()

	return records
}

// SerializeAll encodes the public fields of every cached record as a JSON
// array ordered by id.
func (d *Dex) SerializeAll() ([]byte, error) {
	records := d.All()
	data := make([]Data, 0, len(records))
	for _, r := range records {
		data = append(data, r.Data())
	}
	return json.Marshal(data)
}

// Clear drops every in-memory record. The store is untouched.
func (d *Dex) Clear() {
	d.mu.Lock()
	d.byID = make(map[int]*Record)
	d.byName = make(map[string]*Record)
	d.mu.Unlock()
}

// Health checks the backing store
func (d *Dex) Health(ctx context.Context) error {
	return d.store.Health(ctx)
}
