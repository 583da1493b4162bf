/*
scheduler.go - Periodic demand classification

PURPOSE:
  Re-runs ClassifyAllSKUs on a fixed interval so newly registered SKUs get
  a category without an operator calling /api/admin/classify.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Each run uses the scheduler clock's today as asof
  - A run is harmless to repeat: manual overrides are never touched

CONFIGURATION:
  - Interval: CLASSIFIER_INTERVAL_MINUTES (0 disables the scheduler)

USAGE:
  scheduler := NewClassificationScheduler(runner, settings, interval, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Classify endpoint (manual run)
  - demand/runner.go: persistence rule
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/demand"
)

// ClassificationScheduler runs the demand classifier periodically.
type ClassificationScheduler struct {
	Runner   *demand.Runner
	Settings demand.Settings
	Interval time.Duration
	Enabled  bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	runs   atomic.Int64
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClassificationScheduler creates a scheduler. A non-positive interval
// leaves it disabled.
func NewClassificationScheduler(runner *demand.Runner, settings demand.Settings, interval time.Duration, log zerolog.Logger) *ClassificationScheduler {
	return &ClassificationScheduler{
		Runner:   runner,
		Settings: settings,
		Interval: interval,
		Enabled:  interval > 0,
		log:      log.With().Str("component", "classification_scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (cs *ClassificationScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.log.Info().Msg("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.Interval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run()

	cs.log.Info().Dur("interval", cs.Interval).Msg("started")
}

// Stop stops the scheduler and waits for a run in progress.
func (cs *ClassificationScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.log.Info().Msg("stopped")
	}
}

// Runs returns how many runs completed, successful or not.
func (cs *ClassificationScheduler) Runs() int {
	return int(cs.runs.Load())
}

func (cs *ClassificationScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.classify()

	for {
		select {
		case <-cs.ticker.C:
			cs.classify()
		case <-cs.stop:
			return
		}
	}
}

func (cs *ClassificationScheduler) classify() {
	ctx, cancel := context.WithTimeout(context.Background(), cs.Interval)
	defer cancel()

	// Settings.AsOf stays zero so every run uses the runner clock's today.
	if _, err := cs.Runner.ClassifyAllSKUs(ctx, cs.Settings); err != nil {
		cs.log.Error().Err(err).Msg("classification run failed")
	}
	cs.runs.Add(1)
}
