package janitor

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/boswell-ai/boswell/internal/storage"
)

// Worker states. Each worker is a small state machine driven by the
// scheduler's timers and the shutdown signal.
const (
	stateIdle int32 = iota
	stateScanning
	stateApplying
	stateStopping
)

// backoffCeiling caps the retry interval for janitor-internal work.
const backoffCeiling = 5 * time.Minute

// scheduled pairs a janitor with its cadence and retry state.
type scheduled struct {
	janitor  Janitor
	interval time.Duration
	state    atomic.Int32
	retry    *backoff.ExponentialBackOff
}

// Scheduler owns the wall-clock timers and the shutdown signal for a set of
// janitors. Workers share no mutable state; coordination happens through
// the claim store's transactions and the per-row processing flag.
type Scheduler struct {
	workers []*scheduled
	metrics *Metrics
}

// NewScheduler creates an empty scheduler. metrics may be nil.
func NewScheduler(metrics *Metrics) *Scheduler {
	return &Scheduler{metrics: metrics}
}

// Add registers a janitor at the given cadence. Zero or negative intervals
// disable the worker.
func (s *Scheduler) Add(j Janitor, interval time.Duration) {
	if interval <= 0 {
		log.Printf("janitor: %s disabled (no interval)", j.Name())
		return
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = backoffCeiling
	s.workers = append(s.workers, &scheduled{janitor: j, interval: interval, retry: retry})
}

// Run drives all workers until ctx is cancelled, then waits for each to
// reach a safe point.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			s.runWorker(ctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context, w *scheduled) {
	log.Printf("janitor: %s started (interval %s)", w.janitor.Name(), w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.state.Store(stateStopping)
			log.Printf("janitor: %s stopped", w.janitor.Name())
			return
		case <-ticker.C:
			s.runOnce(ctx, w)
		}
	}
}

// runOnce executes one pass, retrying on retryable faults with exponential
// backoff up to the ceiling, and logging-and-continuing on everything else.
func (s *Scheduler) runOnce(ctx context.Context, w *scheduled) {
	w.state.Store(stateScanning)
	defer w.state.Store(stateIdle)

	for {
		w.state.Store(stateApplying)
		report, err := w.janitor.Run(ctx)
		if report != nil && s.metrics != nil {
			s.metrics.Observe(report)
		}
		if report != nil {
			log.Printf("janitor: %s", report.Summary())
		}

		if err == nil {
			w.retry.Reset()
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !storage.Retryable(err) {
			// Every non-retryable kind, Corrupt included, is logged once
			// and the worker waits for the next tick; Corrupt gets no
			// separate handling.
			log.Printf("janitor: %s failed: %v", w.janitor.Name(), err)
			w.retry.Reset()
			return
		}

		delay := w.retry.NextBackOff()
		if delay > backoffCeiling {
			delay = backoffCeiling
		}
		log.Printf("janitor: %s retrying in %s: %v", w.janitor.Name(), delay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
