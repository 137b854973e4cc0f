package janitor

import (
	"context"
	"log"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/storage"
)

// GCJanitor hard-deletes forgotten claims past the retention period,
// removing their vector entries, provenance, relationships, and cache rows,
// and invalidating the caches of everything that related to them.
type GCJanitor struct {
	store      storage.ClaimStore
	index      storage.VectorIndex
	confidence *engine.ConfidenceEngine
	cfg        config.Config
	now        func() time.Time
}

// NewGCJanitor builds the worker.
func NewGCJanitor(store storage.ClaimStore, index storage.VectorIndex, confidence *engine.ConfidenceEngine, cfg config.Config, now func() time.Time) *GCJanitor {
	if now == nil {
		now = time.Now
	}
	return &GCJanitor{store: store, index: index, confidence: confidence, cfg: cfg, now: now}
}

// Name identifies the worker.
func (j *GCJanitor) Name() string { return "gc" }

// Run deletes one batch of expired forgotten claims.
func (j *GCJanitor) Run(ctx context.Context) (*RunReport, error) {
	start := j.now()
	report := &RunReport{Janitor: j.Name()}

	cutoff := start.Add(-j.cfg.Janitor.GCRetention)
	ids, err := j.store.ForgottenBefore(ctx, cutoff, j.cfg.Janitor.BatchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(ids)
	if len(ids) == 0 {
		report.Elapsed = j.now().Sub(start)
		return report, nil
	}

	neighbors, err := j.store.HardDelete(ctx, ids)
	if err != nil {
		report.Errors++
		return report, err
	}
	report.Deleted = len(ids)

	for _, id := range ids {
		j.index.Delete(id)
	}
	j.confidence.Forget(ids...)

	// HardDelete invalidated the surviving neighbors' persistent rows; the
	// hot cache needs the same treatment.
	j.confidence.Forget(neighbors...)

	if err := j.index.Save(); err != nil {
		report.Errors++
		log.Printf("janitor: gc: failed to persist vector index: %v", err)
	}

	report.Elapsed = j.now().Sub(start)
	return report, nil
}
