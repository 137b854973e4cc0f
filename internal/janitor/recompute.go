package janitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/storage"
)

// RecomputeJanitor drains invalidated confidence-cache rows and recomputes
// the full formula for each. The batch is bounded per run so recomputation
// never starves the other workers.
type RecomputeJanitor struct {
	store      storage.ClaimStore
	confidence *engine.ConfidenceEngine
	cfg        config.Config
	now        func() time.Time
}

// NewRecomputeJanitor builds the worker.
func NewRecomputeJanitor(store storage.ClaimStore, confidence *engine.ConfidenceEngine, cfg config.Config, now func() time.Time) *RecomputeJanitor {
	if now == nil {
		now = time.Now
	}
	return &RecomputeJanitor{store: store, confidence: confidence, cfg: cfg, now: now}
}

// Name identifies the worker.
func (j *RecomputeJanitor) Name() string { return "recompute" }

// Run recomputes one bounded batch of invalidated rows.
func (j *RecomputeJanitor) Run(ctx context.Context) (*RunReport, error) {
	start := j.now()
	report := &RunReport{Janitor: j.Name()}

	ids, err := j.store.InvalidatedCacheIDs(ctx, j.cfg.Janitor.BatchSize)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++

		release, held, err := acquireFlag(ctx, j.store, id, j.Name(), j.now(), j.cfg.Janitor.AbandonAfter)
		if err != nil || !held {
			if err != nil {
				report.Errors++
			}
			continue
		}

		claim, err := j.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				report.Errors++
			}
			release()
			continue
		}

		if _, err := j.confidence.Recompute(ctx, claim); err != nil {
			report.Errors++
			log.Printf("janitor: recompute: %s: %v", id, err)
		} else {
			report.Modified++
		}
		release()
	}

	report.Elapsed = j.now().Sub(start)
	return report, nil
}
