// Package janitor implements Boswell's background maintenance workers:
// staleness decay, tier demotion, garbage collection, confidence
// recomputation, and contradiction detection.
//
// Every worker operates through the claim store's transactional surface and
// serializes per-claim work with the advisory processing flag; two janitors
// never mutate the same claim concurrently.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/boswell-ai/boswell/pkg/types"
)

// Janitor is one background maintenance concern.
type Janitor interface {
	// Name identifies the worker in logs, flags, and metrics.
	Name() string

	// Run executes one pass and reports what it did. Run must be safe to
	// interrupt via ctx at any scan boundary.
	Run(ctx context.Context) (*RunReport, error)
}

// RunReport is the structured summary every janitor produces per pass.
type RunReport struct {
	Janitor  string
	Scanned  int
	Modified int
	Demoted  int
	Deleted  int
	Errors   int
	Elapsed  time.Duration
}

// Summary renders the report as a single log line.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("%s: scanned=%d modified=%d demoted=%d deleted=%d errors=%d elapsed=%s",
		r.Janitor, r.Scanned, r.Modified, r.Demoted, r.Deleted, r.Errors, r.Elapsed)
}

// flagStore is the slice of the claim store the flag helpers need.
type flagStore interface {
	AcquireProcessing(ctx context.Context, id types.ClaimID, worker string, now time.Time, abandonAfter time.Duration) (bool, error)
	ReleaseProcessing(ctx context.Context, id types.ClaimID, worker string) error
}

func acquireFlag(ctx context.Context, store flagStore, id types.ClaimID, worker string, now time.Time, abandonAfter time.Duration) (func(), bool, error) {
	ok, err := store.AcquireProcessing(ctx, id, worker, now, abandonAfter)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// Release on a background context so shutdown doesn't strand flags;
		// abandoned flags are stolen after the threshold anyway.
		_ = store.ReleaseProcessing(context.Background(), id, worker)
	}
	return release, true, nil
}
