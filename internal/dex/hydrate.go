package dex

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"pokedex/internal/common/logging"
	"pokedex/internal/upstream"
)

// HydrationFailure records one key that could not be loaded
type HydrationFailure struct {
	Key string `json:"key"`
	Err error  `json:"-"`
}

// HydrationReport summarises a hydration run
type HydrationReport struct {
	Requested int                `json:"requested"`
	Loaded    int                `json:"loaded"`
	Failed    int                `json:"failed"`
	Failures  []HydrationFailure `json:"failures,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Hydrate loads keys through Get in batches of concurrency. Each batch fully
// settles, then delay elapses, before the next batch starts. Item failures
// are logged and reported; only ctx cancellation ends the run early.
func (d *Dex) Hydrate(ctx context.Context, keys []Key, concurrency int, delay time.Duration) (*HydrationReport, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	start := time.Now()
	report := &HydrationReport{Requested: len(keys)}
	defer func() { report.Duration = time.Since(start) }()

	batches := lo.Chunk(keys, concurrency)
	done := 0

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for j, key := range batch {
			wg.Add(1)
			go func(j int, key Key) {
				defer wg.Done()
				_, errs[j] = d.Get(ctx, key)
			}(j, key)
		}
		wg.Wait()

		for j, err := range errs {
			if err == nil {
				report.Loaded++
				continue
			}
			report.Failed++
			report.Failures = append(report.Failures, HydrationFailure{Key: batch[j].String(), Err: err})
			d.logger.Warn("Failed to hydrate",
				logging.String("key", batch[j].String()),
				logging.Err(err),
			)
		}

		done += len(batch)
		d.logger.Info("Hydration progress",
			logging.Int("done", done),
			logging.Int("total", len(keys)),
		)

		if delay > 0 && i < len(batches)-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return report, ctx.Err()
			case <-timer.C:
			}
		}
	}

	d.logger.Info("Hydration complete",
		logging.Int("loaded", report.Loaded),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

// HydrateFromIndex fetches the upstream listing and hydrates every id in it.
func (d *Dex) HydrateFromIndex(ctx context.Context, concurrency int, delay time.Duration) (*HydrationReport, error) {
	entries, err := d.source.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	keys := lo.Map(entries, func(e upstream.IndexEntry, _ int) Key { return IDKey(e.ID) })
	d.logger.Info("Hydrating from index", logging.Int("entries", len(keys)))

	return d.Hydrate(ctx, keys, concurrency, delay)
}

// HydrateRange hydrates ids 1 through count.
func (d *Dex) HydrateRange(ctx context.Context, count, concurrency int, delay time.Duration) (*HydrationReport, error) {
	if count < 0 {
		count = 0
	}
	keys := lo.Map(lo.RangeFrom(1, count), func(id int, _ int) Key { return IDKey(id) })
	return d.Hydrate(ctx, keys, concurrency, delay)
}
