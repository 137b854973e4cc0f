package janitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/boswell-ai/boswell/internal/config"
	"github.com/boswell-ai/boswell/internal/engine"
	"github.com/boswell-ai/boswell/internal/llm"
	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// ContradictionJanitor finds structurally aligned claim pairs (same subject
// and predicate, different object) and — when a reasoner is bound — asks
// whether they semantically contradict. On an affirmative verdict it records
// a contradicts edge from the stronger claim to the weaker and transitions
// the weaker (lower eff_lo) to challenged.
type ContradictionJanitor struct {
	store      storage.ClaimStore
	confidence *engine.ConfidenceEngine
	registry   *llm.Registry
	cfg        config.Config
	now        func() time.Time
}

// NewContradictionJanitor builds the worker.
func NewContradictionJanitor(store storage.ClaimStore, confidence *engine.ConfidenceEngine, registry *llm.Registry, cfg config.Config, now func() time.Time) *ContradictionJanitor {
	if now == nil {
		now = time.Now
	}
	return &ContradictionJanitor{store: store, confidence: confidence, registry: registry, cfg: cfg, now: now}
}

// Name identifies the worker.
func (j *ContradictionJanitor) Name() string { return "contradiction" }

// Run scans one bounded batch of candidate pairs.
func (j *ContradictionJanitor) Run(ctx context.Context) (*RunReport, error) {
	start := j.now()
	report := &RunReport{Janitor: j.Name()}

	candidates, err := j.store.ContradictionCandidates(ctx, j.cfg.Janitor.ContradictionMaxPerPass)
	if err != nil {
		return report, err
	}

	reasoner, reasonerErr := j.registry.Reasoner("")

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++

		linked, err := j.alreadyLinked(ctx, candidate.A.ID, candidate.B.ID)
		if err != nil {
			report.Errors++
			continue
		}
		if linked {
			continue
		}

		// Without a reasoner the structural alignment itself is the
		// verdict; with one, a negative verdict clears the pair.
		if reasonerErr == nil {
			verdicts, err := reasoner.DetectContradictions(ctx, []llm.ClaimPair{{A: candidate.A, B: candidate.B}})
			if err != nil {
				if storage.Retryable(err) {
					report.Errors++
					continue
				}
				if errors.Is(err, storage.ErrUnsupported) {
					reasonerErr = err
				} else {
					report.Errors++
					continue
				}
			} else if !verdicts[0].Contradicts {
				continue
			}
		}

		if err := j.recordContradiction(ctx, report, candidate); err != nil {
			report.Errors++
			log.Printf("janitor: contradiction: %s vs %s: %v", candidate.A.ID, candidate.B.ID, err)
		}
	}

	report.Elapsed = j.now().Sub(start)
	return report, nil
}

func (j *ContradictionJanitor) alreadyLinked(ctx context.Context, a, b types.ClaimID) (bool, error) {
	rels, err := j.store.RelationshipsFor(ctx, a)
	if err != nil {
		return false, err
	}
	for _, r := range rels {
		if r.Type != types.RelContradicts {
			continue
		}
		if (r.SourceID == a && r.TargetID == b) || (r.SourceID == b && r.TargetID == a) {
			return true, nil
		}
	}
	return false, nil
}

// recordContradiction adds the edge stronger → weaker and challenges the
// weaker claim.
func (j *ContradictionJanitor) recordContradiction(ctx context.Context, report *RunReport, candidate storage.ContradictionCandidate) error {
	effA, err := j.confidence.Effective(ctx, &candidate.A)
	if err != nil {
		return err
	}
	effB, err := j.confidence.Effective(ctx, &candidate.B)
	if err != nil {
		return err
	}

	stronger, weaker := candidate.A, candidate.B
	if effB.Lo > effA.Lo {
		stronger, weaker = candidate.B, candidate.A
	}

	releaseW, held, err := acquireFlag(ctx, j.store, weaker.ID, j.Name(), j.now(), j.cfg.Janitor.AbandonAfter)
	if err != nil || !held {
		return err
	}
	defer releaseW()

	rel := &types.Relationship{
		SourceID:  stronger.ID,
		TargetID:  weaker.ID,
		Type:      types.RelContradicts,
		Strength:  1,
		CreatedAt: j.now(),
	}
	if err := j.store.AddRelationship(ctx, rel); err != nil && !errors.Is(err, storage.ErrConflict) {
		return err
	}

	if weaker.Status == types.StatusActive {
		if err := j.store.UpdateStatus(ctx, weaker.ID, types.StatusChallenged, j.Name()); err != nil {
			return err
		}
	}

	report.Modified++
	return nil
}
