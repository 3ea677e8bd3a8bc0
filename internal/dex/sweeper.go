package dex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"pokedex/internal/common/logging"
)

const (
	DefaultSweepSchedule  = "@every 10m"
	DefaultSweepBatchSize = 5
	DefaultSweepTimeout   = 2 * time.Minute
)

type SweeperConfig struct {
	// Schedule is a cron spec or descriptor such as "@every 10m"
	Schedule  string
	BatchSize int
	// Timeout bounds one sweep batch. The batch ignores caller cancellation.
	Timeout time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:  DefaultSweepSchedule,
		BatchSize: DefaultSweepBatchSize,
		Timeout:   DefaultSweepTimeout,
	}
}

// SweeperStats is a snapshot of sweeper activity
type SweeperStats struct {
	Running        bool      `json:"running"`
	Sweeps         int64     `json:"sweeps"`
	LastSweep      time.Time `json:"last_sweep"`
	LastRefreshed  int       `json:"last_refreshed"`
	TotalRefreshed int64     `json:"total_refreshed"`
}

// Sweeper periodically refreshes a random sample of expired records. The
// next sweep is scheduled only once the previous one has finished.
type Sweeper struct {
	dex       *Dex
	schedule  cron.Schedule
	batchSize int
	timeout   time.Duration
	logger    logging.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	statsMu        sync.RWMutex
	lastSweep      time.Time
	lastRefreshed  int
	sweeps         int64
	totalRefreshed atomic.Int64
}

func NewSweeper(d *Dex, config SweeperConfig) (*Sweeper, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSweepSchedule
	}
	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
	}
	return newSweeper(d, schedule, config), nil
}

// NewSweeperWithSchedule uses an already built schedule
func NewSweeperWithSchedule(d *Dex, schedule cron.Schedule, config SweeperConfig) *Sweeper {
	return newSweeper(d, schedule, config)
}

func newSweeper(d *Dex, schedule cron.Schedule, config SweeperConfig) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweepBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweepTimeout
	}

	return &Sweeper{
		dex:       d,
		schedule:  schedule,
		batchSize: config.BatchSize,
		timeout:   config.Timeout,
		logger:    d.logger.WithFields(logging.Field{Key: "component", Value: "sweeper"}),
	}
}

// Start launches the sweep loop. The first sweep happens one period later.
// Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
	s.logger.Info("Sweeper started", logging.Int("batch_size", s.batchSize))
}

// Stop ends the loop, waiting for an in-flight sweep to finish.
// The lock is released before waiting so IsRunning and Stats stay responsive.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		now := time.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.tick()
	}
}

func (s *Sweeper) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep panicked", fmt.Errorf("%v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.SweepOnce(ctx)
}

// SweepOnce refreshes up to the batch size of randomly chosen expired
// records and returns how many were refreshed. Unselected records are untouched.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := s.dex.expiry.now()
	expired := lo.Filter(s.dex.All(), func(r *Record, _ int) bool {
		return r.IsExpiredAt(now)
	})
	if len(expired) == 0 {
		return 0
	}

	batch := lo.Shuffle(expired)
	if len(batch) > s.batchSize {
		batch = batch[:s.batchSize]
	}

	s.logger.Info("Sweeping expired records",
		logging.Int("expired", len(expired)),
		logging.Int("batch", len(batch)),
	)

	var refreshed atomic.Int64
	var wg sync.WaitGroup
	for _, r := range batch {
		wg.Add(1)
		go func(r *Record) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("Refresh panicked", fmt.Errorf("%v", p), logging.Int("id", r.ID()))
				}
			}()

			if err := s.dex.refresh(ctx, r); err != nil {
				s.logger.Warn("Failed to refresh record",
					logging.Int("id", r.ID()),
					logging.Err(err),
				)
				return
			}
			refreshed.Add(1)
			s.logger.Debug("Refreshed record",
				logging.Int("id", r.ID()),
				logging.String("name", r.Name()),
			)
		}(r)
	}
	wg.Wait()

	n := int(refreshed.Load())
	s.statsMu.Lock()
	s.lastSweep = time.Now()
	s.lastRefreshed = n
	s.sweeps++
	s.statsMu.Unlock()
	s.totalRefreshed.Add(int64(n))

	return n
}

func (s *Sweeper) Stats() SweeperStats {
	running := s.IsRunning()

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return SweeperStats{
		Running:        running,
		Sweeps:         s.sweeps,
		LastSweep:      s.lastSweep,
		LastRefreshed:  s.lastRefreshed,
		TotalRefreshed: s.totalRefreshed.Load(),
	}
}
