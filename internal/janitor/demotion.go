package janitor

import (
	"context"
	"log"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// TierMigrationJanitor demotes claims down the tier ladder:
//
//	permanent → project  when eff_lo drops under the demotion threshold and
//	                     the claim has not been accessed within the window
//	project   → task     on project inactivity
//	task      → ephemeral on task inactivity with no inbound references
//	ephemeral → forgotten on TTL expiry
type TierMigrationJanitor struct {
	store      storage.ClaimStore
	index      storage.VectorIndex
	confidence *engine.ConfidenceEngine
	cfg        config.Config
	now        func() time.Time
}

// NewTierMigrationJanitor builds the worker.
func NewTierMigrationJanitor(store storage.ClaimStore, index storage.VectorIndex, confidence *engine.ConfidenceEngine, cfg config.Config, now func() time.Time) *TierMigrationJanitor {
	if now == nil {
		now = time.Now
	}
	return &TierMigrationJanitor{store: store, index: index, confidence: confidence, cfg: cfg, now: now}
}

// Name identifies the worker.
func (j *TierMigrationJanitor) Name() string { return "tier-migration" }

// Run sweeps each demotion rule once, bottom-up so a claim moves at most
// one tier per pass.
func (j *TierMigrationJanitor) Run(ctx context.Context) (*RunReport, error) {
	start := j.now()
	report := &RunReport{Janitor: j.Name()}

	j.expireEphemeral(ctx, report)
	j.demoteInactive(ctx, report, types.TierTask, false)
	j.demoteInactive(ctx, report, types.TierProject, false)
	j.demoteInactive(ctx, report, types.TierPermanent, true)

	report.Elapsed = j.now().Sub(start)
	return report, ctx.Err()
}

// demoteInactive demotes one tier's inactive claims a step down.
// checkConfidence additionally requires eff_lo below the demotion threshold
// (the permanent → project rule).
func (j *TierMigrationJanitor) demoteInactive(ctx context.Context, report *RunReport, tier types.Tier, checkConfidence bool) {
	cutoff := j.now().Add(-j.cfg.Janitor.InactivityWindow)
	claims, err := j.store.InactiveClaims(ctx, tier, cutoff, j.cfg.Janitor.BatchSize)
	if err != nil {
		report.Errors++
		log.Printf("janitor: tier-migration: scan %s: %v", tier, err)
		return
	}

	below, ok := tier.Previous()
	if !ok {
		return
	}

	for i := range claims {
		if ctx.Err() != nil {
			return
		}
		claim := &claims[i]
		report.Scanned++

		release, held, err := acquireFlag(ctx, j.store, claim.ID, j.Name(), j.now(), j.cfg.Janitor.AbandonAfter)
		if err != nil || !held {
			if err != nil {
				report.Errors++
			}
			continue
		}

		if checkConfidence {
			effective, err := j.confidence.Effective(ctx, claim)
			if err != nil {
				report.Errors++
				release()
				continue
			}
			if effective.Lo >= j.cfg.Janitor.DemotionThreshold {
				release()
				continue
			}
		}

		if tier == types.TierTask {
			inbound, err := j.hasInboundReferences(ctx, claim.ID)
			if err != nil {
				report.Errors++
				release()
				continue
			}
			if inbound {
				release()
				continue
			}
		}

		if err := j.store.SetTier(ctx, claim.ID, below, j.Name()); err != nil {
			report.Errors++
			log.Printf("janitor: tier-migration: demote %s: %v", claim.ID, err)
		} else {
			report.Demoted++
		}
		release()
	}
}

// expireEphemeral forgets ephemeral claims whose TTL elapsed and removes
// their vector entries.
func (j *TierMigrationJanitor) expireEphemeral(ctx context.Context, report *RunReport) {
	claims, err := j.store.ExpiredEphemeral(ctx, j.now(), j.cfg.Janitor.BatchSize)
	if err != nil {
		report.Errors++
		log.Printf("janitor: tier-migration: expired scan: %v", err)
		return
	}

	for i := range claims {
		if ctx.Err() != nil {
			return
		}
		claim := &claims[i]
		report.Scanned++

		release, held, err := acquireFlag(ctx, j.store, claim.ID, j.Name(), j.now(), j.cfg.Janitor.AbandonAfter)
		if err != nil || !held {
			if err != nil {
				report.Errors++
			}
			continue
		}

		if err := j.store.UpdateStatus(ctx, claim.ID, types.StatusForgotten, j.Name()); err != nil {
			report.Errors++
			log.Printf("janitor: tier-migration: expire %s: %v", claim.ID, err)
		} else {
			j.index.Delete(claim.ID)
			report.Modified++
		}
		release()
	}
}

func (j *TierMigrationJanitor) hasInboundReferences(ctx context.Context, id types.ClaimID) (bool, error) {
	rels, err := j.store.RelationshipsFor(ctx, id)
	if err != nil {
		return false, err
	}
	for _, r := range rels {
		if r.TargetID == id {
			return true, nil
		}
	}
	return false, nil
}
