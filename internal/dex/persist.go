package dex

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"pokedex/internal/common/errors"
	"pokedex/internal/common/logging"
)

const (
	recordKeyPrefix = "record:"
	nameKeyPrefix   = "name:"
	manifestKey     = "allKnownIds"
)

func recordKey(id int) string {
	return recordKeyPrefix + strconv.Itoa(id)
}

func nameKey(name string) string {
	return nameKeyPrefix + strings.ToLower(name)
}

// persist writes the record blob, its name mapping and the manifest, then
// marks the record clean.
func (d *Dex) persist(ctx context.Context, r *Record) error {
	blob, err := r.marshalStored()
	if err != nil {
		return errors.InternalError("failed to encode record", err)
	}

	data := r.Data()
	if err := d.store.Set(ctx, recordKey(data.ID), blob); err != nil {
		return err
	}
	if err := d.store.Set(ctx, nameKey(data.Name), strconv.Itoa(data.ID)); err != nil {
		return err
	}
	if err := d.writeManifest(ctx, data.ID); err != nil {
		return err
	}

	r.markClean()
	return nil
}

// writeManifest rewrites allKnownIds from the id index plus every id
// persisted so far. Writes are serialised so an older snapshot never lands last.
func (d *Dex) writeManifest(ctx context.Context, id int) error {
	d.manifestMu.Lock()
	defer d.manifestMu.Unlock()

	d.known[id] = struct{}{}

	d.mu.RLock()
	for memID := range d.byID {
		d.known[memID] = struct{}{}
	}
	d.mu.RUnlock()

	ids := lo.Keys(d.known)
	sort.Ints(ids)

	blob, err := json.Marshal(ids)
	if err != nil {
		return errors.InternalError("failed to encode manifest", err)
	}
	return d.store.Set(ctx, manifestKey, string(blob))
}

// dropNameMapping deletes name:<name> if it still points at id
func (d *Dex) dropNameMapping(ctx context.Context, name string, id int) error {
	mapped, ok, err := d.store.Get(ctx, nameKey(name))
	if err != nil {
		return err
	}
	if !ok || mapped != strconv.Itoa(id) {
		return nil
	}
	return d.store.Del(ctx, nameKey(name))
}

// KnownIDs reads the persisted manifest. A missing manifest is empty.
func (d *Dex) KnownIDs(ctx context.Context) ([]int, error) {
	blob, ok, err := d.store.Get(ctx, manifestKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []int{}, nil
	}

	var ids []int
	if err := json.Unmarshal([]byte(blob), &ids); err != nil {
		return nil, errors.MalformedError(manifestKey, err)
	}
	return ids, nil
}

// loadFromStore resolves key through the store. It returns nil without an
// error on a miss, including a missing name mapping or an undecodable blob.
func (d *Dex) loadFromStore(ctx context.Context, key Key) (*Record, error) {
	id := key.ID()
	if !key.IsID() {
		raw, ok, err := d.store.Get(ctx, nameKey(key.Name()))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		id, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || id <= 0 {
			d.logger.Warn("Ignoring malformed name mapping",
				logging.String("key", nameKey(key.Name())),
				logging.String("value", raw),
			)
			return nil, nil
		}
	}

	blob, ok, err := d.store.Get(ctx, recordKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	r, err := d.decode(recordKey(id), blob)
	if err != nil {
		d.logger.Warn("Stored record is malformed, treating as miss",
			logging.String("key", recordKey(id)),
			logging.Err(err),
		)
		return nil, nil
	}
	return r, nil
}

func (d *Dex) decode(key, blob string) (*Record, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return nil, errors.MalformedError(key, err)
	}
	if err := d.validate.Struct(&stored); err != nil {
		return nil, errors.MalformedError(key, err)
	}

	r := &Record{
		data:       stored.Data,
		lastAccess: time.UnixMilli(stored.LastAccess),
		ttl:        time.Duration(stored.TTL) * time.Millisecond,
		expiry:     d.expiry,
	}
	if stored.TTL == 0 {
		r.lastAccess = d.expiry.now()
		r.ttl = d.expiry.drawTTL()
	}
	return r, nil
}
