package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// AcquireProcessing claims the advisory processing flag for a claim. Flags
// older than abandonAfter belong to crashed workers and are stolen.
func (s *ClaimStore) AcquireProcessing(ctx context.Context, id types.ClaimID, worker string, now time.Time, abandonAfter time.Duration) (bool, error) {
	cutoff := now.Add(-abandonAfter)

	res, err := s.w.ExecContext(ctx, `
		INSERT INTO processing_flags (claim_id, worker, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			worker = excluded.worker,
			claimed_at = excluded.claimed_at
		WHERE processing_flags.claimed_at < ?
	`, id.String(), worker, now, cutoff)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to acquire processing flag: %w", mapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

// ReleaseProcessing clears the flag if held by worker.
func (s *ClaimStore) ReleaseProcessing(ctx context.Context, id types.ClaimID, worker string) error {
	_, err := s.w.ExecContext(ctx,
		`DELETE FROM processing_flags WHERE claim_id = ? AND worker = ?`,
		id.String(), worker)
	if err != nil {
		return fmt.Errorf("sqlite: failed to release processing flag: %w", mapError(err))
	}
	return nil
}

// StaleClaims returns non-forgotten claims with staleness_at < now, oldest
// staleness first.
func (s *ClaimStore) StaleClaims(ctx context.Context, now time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, claimSelect+`
		WHERE staleness_at < ? AND status != ?
		ORDER BY staleness_at ASC
		LIMIT ?
	`, now, string(types.StatusForgotten), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stale claims query: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stale claims scan: %w", err)
	}
	return claims, nil
}

// InactiveClaims returns active/challenged claims at the tier not accessed
// since the cutoff. Claims never accessed compare by creation time.
func (s *ClaimStore) InactiveClaims(ctx context.Context, tier types.Tier, cutoff time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, claimSelect+`
		WHERE tier = ?
		  AND status IN (?, ?)
		  AND COALESCE(last_accessed, created_at) < ?
		ORDER BY COALESCE(last_accessed, created_at) ASC
		LIMIT ?
	`, string(tier), string(types.StatusActive), string(types.StatusChallenged), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inactive claims query: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inactive claims scan: %w", err)
	}
	return claims, nil
}

// ExpiredEphemeral returns ephemeral claims whose TTL elapsed before now.
func (s *ClaimStore) ExpiredEphemeral(ctx context.Context, now time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, claimSelect+`
		WHERE tier = ?
		  AND status IN (?, ?)
		  AND ttl_seconds IS NOT NULL
		ORDER BY id ASC
	`, string(types.TierEphemeral),
		string(types.StatusActive), string(types.StatusChallenged))
	if err != nil {
		return nil, fmt.Errorf("sqlite: expired ephemeral query: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: expired ephemeral scan: %w", err)
	}

	// The expiry test runs in Go: the driver's stored timestamp text is not
	// parseable by SQLite's date functions.
	expired := claims[:0]
	for _, c := range claims {
		if len(expired) < limit && c.TTL != nil && c.CreatedAt.Add(*c.TTL).Before(now) {
			expired = append(expired, c)
		}
	}
	return expired, nil
}

// ForgottenBefore returns ids of forgotten claims whose last modification
// predates the cutoff. GC input.
func (s *ClaimStore) ForgottenBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.ClaimID, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, `
		SELECT id FROM claims
		WHERE status = ? AND last_modified < ?
		ORDER BY id ASC
		LIMIT ?
	`, string(types.StatusForgotten), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: forgotten claims query: %w", mapError(err))
	}
	defer rows.Close()

	var ids []types.ClaimID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError(err)
		}
		id, err := types.ParseClaimID(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt claim id: %w", storage.ErrCorrupt)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireSession transitions the session's ephemeral claims to forgotten.
func (s *ClaimStore) ExpireSession(ctx context.Context, sessionID string, actor string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("%w: session id is required", storage.ErrInvalid)
	}

	claims, err := s.QueryStructural(ctx, storage.StructuralFilter{
		SessionID: sessionID,
		Tiers:     []types.Tier{types.TierEphemeral},
		Limit:     storage.MaxQueryLimit,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range claims {
		if err := s.UpdateStatus(ctx, claims[i].ID, types.StatusForgotten, actor); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ContradictionCandidates returns structurally aligned pairs: same subject
// and predicate, different object, same namespace, both active/challenged.
// The A side is always the older claim.
func (s *ClaimStore) ContradictionCandidates(ctx context.Context, limit int) ([]storage.ContradictionCandidate, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, `
		SELECT a.id, b.id
		FROM claims a
		JOIN claims b
		  ON a.namespace = b.namespace
		 AND a.subject = b.subject
		 AND a.predicate = b.predicate
		 AND a.object != b.object
		 AND a.id < b.id
		WHERE a.status IN (?, ?) AND b.status IN (?, ?)
		LIMIT ?
	`, string(types.StatusActive), string(types.StatusChallenged),
		string(types.StatusActive), string(types.StatusChallenged), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: contradiction candidates query: %w", mapError(err))
	}
	defer rows.Close()

	type pair struct{ a, b string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.a, &p.b); err != nil {
			return nil, mapError(err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	candidates := make([]storage.ContradictionCandidate, 0, len(pairs))
	for _, p := range pairs {
		aID, err := types.ParseClaimID(p.a)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt claim id: %w", storage.ErrCorrupt)
		}
		bID, err := types.ParseClaimID(p.b)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt claim id: %w", storage.ErrCorrupt)
		}
		a, err := s.Get(ctx, aID)
		if err != nil {
			return nil, err
		}
		b, err := s.Get(ctx, bID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, storage.ContradictionCandidate{A: *a, B: *b})
	}
	return candidates, nil
}
