package janitor

import (
	"context"
	"log"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/storage"
)

// StalenessJanitor recomputes decayed base intervals for claims past their
// staleness horizon. Purely deterministic: provenance aggregation and
// half-life decay only, no relationship effects.
type StalenessJanitor struct {
	store      storage.ClaimStore
	confidence *engine.ConfidenceEngine
	cfg        config.Config
	now        func() time.Time
}

// NewStalenessJanitor builds the worker.
func NewStalenessJanitor(store storage.ClaimStore, confidence *engine.ConfidenceEngine, cfg config.Config, now func() time.Time) *StalenessJanitor {
	if now == nil {
		now = time.Now
	}
	return &StalenessJanitor{store: store, confidence: confidence, cfg: cfg, now: now}
}

// Name identifies the worker.
func (j *StalenessJanitor) Name() string { return "staleness" }

// Run scans claims with staleness_at in the past, bakes the decayed
// interval into the stored base interval, and pushes the staleness horizon
// forward one half-life so decay compounds pass over pass.
func (j *StalenessJanitor) Run(ctx context.Context) (*RunReport, error) {
	start := j.now()
	report := &RunReport{Janitor: j.Name()}

	claims, err := j.store.StaleClaims(ctx, start, j.cfg.Janitor.BatchSize)
	if err != nil {
		return report, err
	}

	for i := range claims {
		if ctx.Err() != nil {
			break
		}
		claim := &claims[i]
		report.Scanned++

		release, ok, err := acquireFlag(ctx, j.store, claim.ID, j.Name(), j.now(), j.cfg.Janitor.AbandonAfter)
		if err != nil {
			report.Errors++
			continue
		}
		if !ok {
			continue
		}

		stale, err := j.confidence.StaleOnly(ctx, claim)
		if err != nil {
			report.Errors++
			log.Printf("janitor: staleness: recompute for %s: %v", claim.ID, err)
			release()
			continue
		}

		nextHorizon := j.now().Add(j.cfg.Confidence.HalfLife(string(claim.Tier)))
		if err := j.store.UpdateBaseConfidence(ctx, claim.ID, stale, nextHorizon); err != nil {
			report.Errors++
			log.Printf("janitor: staleness: update for %s: %v", claim.ID, err)
		} else {
			report.Modified++
		}
		release()
	}

	report.Elapsed = j.now().Sub(start)
	return report, nil
}
