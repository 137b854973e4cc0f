package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// AddProvenance appends an entry and invalidates the claim's cache along
// with its related neighbors.
func (s *ClaimStore) AddProvenance(ctx context.Context, id types.ClaimID, entry *types.ProvenanceEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: provenance entry is required", storage.ErrInvalid)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = $1`, id.String()).Scan(&one); err != nil {
		return mapError(err)
	}
	if err := insertProvenanceTx(ctx, tx, id, entry); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET last_modified = $1 WHERE id = $2`, entry.Timestamp, id.String()); err != nil {
		return mapError(err)
	}

	neighbors, err := neighborIDsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := invalidateCacheTx(ctx, tx, entry.Timestamp, append(neighbors, id)...); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// ProvenanceFor returns all provenance entries for a claim, oldest first.
func (s *ClaimStore) ProvenanceFor(ctx context.Context, id types.ClaimID) ([]types.ProvenanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, source_type, source_id, timestamp, confidence_contribution, context
		FROM provenance WHERE claim_id = $1 ORDER BY id ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: provenance query: %w", mapError(err))
	}
	defer rows.Close()

	var entries []types.ProvenanceEntry
	for rows.Next() {
		var (
			e       types.ProvenanceEntry
			rawID   string
			rawType string
			ctxText sql.NullString
		)
		if err := rows.Scan(&rawID, &rawType, &e.SourceID, &e.Timestamp, &e.ConfidenceContribution, &ctxText); err != nil {
			return nil, mapError(err)
		}
		cid, err := types.ParseClaimID(rawID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt provenance claim id: %w", storage.ErrCorrupt)
		}
		e.ClaimID = cid
		e.SourceType = types.SourceType(rawType)
		e.Context = ctxText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddRelationship stores a directed edge and invalidates both endpoints.
func (s *ClaimStore) AddRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is required", storage.ErrInvalid)
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (source_id, target_id, relation_type, strength, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rel.SourceID.String(), rel.TargetID.String(), string(rel.Type), rel.Strength, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert relationship: %w", mapError(err))
	}
	if err := invalidateCacheTx(ctx, tx, rel.CreatedAt, rel.SourceID, rel.TargetID); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// RemoveRelationship deletes an edge and invalidates both endpoints.
func (s *ClaimStore) RemoveRelationship(ctx context.Context, source, target types.ClaimID, relType types.RelationType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM relationships WHERE source_id = $1 AND target_id = $2 AND relation_type = $3
	`, source.String(), target.String(), string(relType))
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if err := invalidateCacheTx(ctx, tx, time.Now().UTC(), source, target); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// RelationshipsFor returns all edges touching id.
func (s *ClaimStore) RelationshipsFor(ctx context.Context, id types.ClaimID) ([]types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation_type, strength, created_at
		FROM relationships WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: relationships query: %w", mapError(err))
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var (
			src, tgt, relType string
			strength          float64
			createdAt         time.Time
		)
		if err := rows.Scan(&src, &tgt, &relType, &strength, &createdAt); err != nil {
			return nil, mapError(err)
		}
		sourceID, err := types.ParseClaimID(src)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt relationship source: %w", storage.ErrCorrupt)
		}
		targetID, err := types.ParseClaimID(tgt)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt relationship target: %w", storage.ErrCorrupt)
		}
		rels = append(rels, types.Relationship{
			SourceID: sourceID, TargetID: targetID,
			Type: types.RelationType(relType), Strength: strength, CreatedAt: createdAt,
		})
	}
	return rels, rows.Err()
}

// UpdateStatus applies a transition under the status machine.
func (s *ClaimStore) UpdateStatus(ctx context.Context, id types.ClaimID, newStatus types.Status, actor string) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: invalid status %q", storage.ErrInvalid, newStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM claims WHERE id = $1 FOR UPDATE`, id.String()).Scan(&current); err != nil {
		return mapError(err)
	}
	if !types.Status(current).CanTransition(newStatus) {
		return fmt.Errorf("%w: illegal status transition %s → %s", storage.ErrInvalid, current, newStatus)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET status = $1, last_modified = $2 WHERE id = $3`,
		string(newStatus), now, id.String()); err != nil {
		return mapError(err)
	}
	if err := invalidateCacheTx(ctx, tx, now, id); err != nil {
		return err
	}

	kind := types.EventStatusChange
	switch newStatus {
	case types.StatusForgotten:
		kind = types.EventForget
	case types.StatusChallenged:
		kind = types.EventChallenge
	}
	if err := appendEventTx(ctx, tx, &types.Event{
		Kind: kind, ClaimID: id, Actor: actor, Timestamp: now,
		Payload: fmt.Sprintf("%s -> %s", current, newStatus),
	}); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// SetTier records a tier change with the matching promote/demote event.
func (s *ClaimStore) SetTier(ctx context.Context, id types.ClaimID, tier types.Tier, actor string) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: invalid tier %q", storage.ErrInvalid, tier)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx,
		`SELECT tier FROM claims WHERE id = $1 FOR UPDATE`, id.String()).Scan(&current); err != nil {
		return mapError(err)
	}
	if types.Tier(current) == tier {
		return mapError(tx.Commit())
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET tier = $1, last_modified = $2 WHERE id = $3`,
		string(tier), now, id.String()); err != nil {
		return mapError(err)
	}

	kind := types.EventPromote
	if tier.Rank() < types.Tier(current).Rank() {
		kind = types.EventDemote
	}
	if err := appendEventTx(ctx, tx, &types.Event{
		Kind: kind, ClaimID: id, Actor: actor, Timestamp: now,
		Payload: fmt.Sprintf("%s -> %s", current, tier),
	}); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// IncrementAccess bumps access_count and last_accessed.
func (s *ClaimStore) IncrementAccess(ctx context.Context, id types.ClaimID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET access_count = access_count + 1, last_accessed = $1 WHERE id = $2
	`, time.Now().UTC(), id.String())
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchStaleness moves staleness_at forward.
func (s *ClaimStore) TouchStaleness(ctx context.Context, id types.ClaimID, stalenessAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET staleness_at = $1 WHERE id = $2`, stalenessAt, id.String())
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBaseConfidence rewrites the stored base interval, pushes the
// staleness horizon, and invalidates the cache row.
func (s *ClaimStore) UpdateBaseConfidence(ctx context.Context, id types.ClaimID, interval types.ConfidenceInterval, stalenessAt time.Time) error {
	if err := interval.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE claims SET conf_lo = $1, conf_hi = $2, staleness_at = $3, last_modified = $4
		WHERE id = $5
	`, interval.Lo, interval.Hi, stalenessAt, now, id.String())
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	if err := invalidateCacheTx(ctx, tx, now, id); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// HardDelete removes claims (cascade covers provenance, relationships, and
// cache rows) and returns surviving neighbors for cache invalidation.
func (s *ClaimStore) HardDelete(ctx context.Context, ids []types.ClaimID) ([]types.ClaimID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	deleted := make(map[types.ClaimID]bool, len(ids))
	for _, id := range ids {
		deleted[id] = true
	}
	neighborSet := make(map[types.ClaimID]bool)
	for _, id := range ids {
		neighbors, err := neighborIDsTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if !deleted[n] {
				neighborSet[n] = true
			}
		}
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE id = $1`, id.String()); err != nil {
			return nil, mapError(err)
		}
	}

	survivors := make([]types.ClaimID, 0, len(neighborSet))
	for n := range neighborSet {
		survivors = append(survivors, n)
	}
	if err := invalidateCacheTx(ctx, tx, time.Now().UTC(), survivors...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return survivors, nil
}

// AppendEvent writes one audit record.
func (s *ClaimStore) AppendEvent(ctx context.Context, ev *types.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()
	if err := appendEventTx(ctx, tx, ev); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

func appendEventTx(ctx context.Context, tx *sql.Tx, ev *types.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO event_log (id, kind, claim_id, actor, timestamp, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ev.ID, string(ev.Kind), ev.ClaimID.String(), ev.Actor, ev.Timestamp, nullableString(ev.Payload))
	if err != nil {
		return fmt.Errorf("postgres: failed to append event: %w", mapError(err))
	}
	return nil
}

// EventsSince returns events at or after since, oldest first.
func (s *ClaimStore) EventsSince(ctx context.Context, since time.Time, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, claim_id, actor, timestamp, payload FROM event_log
		WHERE timestamp >= $1 ORDER BY timestamp ASC, id ASC LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: events query: %w", mapError(err))
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev      types.Event
			kind    string
			rawID   string
			payload sql.NullString
		)
		if err := rows.Scan(&ev.ID, &kind, &rawID, &ev.Actor, &ev.Timestamp, &payload); err != nil {
			return nil, mapError(err)
		}
		cid, err := types.ParseClaimID(rawID)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt event claim id: %w", storage.ErrCorrupt)
		}
		ev.Kind = types.EventKind(kind)
		ev.ClaimID = cid
		ev.Payload = payload.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func neighborIDsTx(ctx context.Context, tx *sql.Tx, id types.ClaimID) ([]types.ClaimID, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT target_id FROM relationships WHERE source_id = $1
		UNION
		SELECT source_id FROM relationships WHERE target_id = $1
	`, id.String())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var neighbors []types.ClaimID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError(err)
		}
		nid, err := types.ParseClaimID(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt relationship endpoint: %w", storage.ErrCorrupt)
		}
		neighbors = append(neighbors, nid)
	}
	return neighbors, rows.Err()
}

func invalidateCacheTx(ctx context.Context, tx *sql.Tx, now time.Time, ids ...types.ClaimID) error {
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO confidence_cache (claim_id, version, invalidated, invalidated_at)
			VALUES ($1, 1, TRUE, $2)
			ON CONFLICT (claim_id) DO UPDATE SET
				version = confidence_cache.version + 1,
				invalidated = TRUE,
				invalidated_at = EXCLUDED.invalidated_at
		`, id.String(), now)
		if err != nil {
			return fmt.Errorf("postgres: failed to invalidate cache: %w", mapError(err))
		}
	}
	return nil
}

// GetCache returns the cache row for a claim.
func (s *ClaimStore) GetCache(ctx context.Context, id types.ClaimID) (*storage.CacheEntry, error) {
	var (
		entry      storage.CacheEntry
		computedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT eff_lo, eff_hi, computed_at, version, invalidated
		FROM confidence_cache WHERE claim_id = $1
	`, id.String()).Scan(&entry.Interval.Lo, &entry.Interval.Hi, &computedAt, &entry.Version, &entry.Invalidated)
	if err != nil {
		return nil, mapError(err)
	}
	entry.ClaimID = id
	entry.ComputedAt = computedAt.Time
	return &entry, nil
}

// PutCache writes a computed interval with version fencing.
func (s *ClaimStore) PutCache(ctx context.Context, entry *storage.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: cache entry is required", storage.ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE confidence_cache
		SET eff_lo = $1, eff_hi = $2, computed_at = $3, invalidated = FALSE
		WHERE claim_id = $4 AND version = $5
	`, entry.Interval.Lo, entry.Interval.Hi, entry.ComputedAt, entry.ClaimID.String(), entry.Version)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetCache(ctx, entry.ClaimID); errors.Is(getErr, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// InvalidateCache bumps versions and marks the rows stale.
func (s *ClaimStore) InvalidateCache(ctx context.Context, ids ...types.ClaimID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()
	if err := invalidateCacheTx(ctx, tx, time.Now().UTC(), ids...); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// InvalidatedCacheIDs returns ids of invalid cache rows, oldest first.
func (s *ClaimStore) InvalidatedCacheIDs(ctx context.Context, limit int) ([]types.ClaimID, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id FROM confidence_cache
		WHERE invalidated ORDER BY invalidated_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]types.ClaimID, error) {
	var ids []types.ClaimID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError(err)
		}
		id, err := types.ParseClaimID(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt claim id: %w", storage.ErrCorrupt)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AcquireProcessing claims the advisory flag, stealing abandoned flags.
func (s *ClaimStore) AcquireProcessing(ctx context.Context, id types.ClaimID, worker string, now time.Time, abandonAfter time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_flags (claim_id, worker, claimed_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (claim_id) DO UPDATE SET
			worker = EXCLUDED.worker, claimed_at = EXCLUDED.claimed_at
		WHERE processing_flags.claimed_at < $4
	`, id.String(), worker, now, now.Add(-abandonAfter))
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, mapError(err)
}

// ReleaseProcessing clears the flag if held by worker.
func (s *ClaimStore) ReleaseProcessing(ctx context.Context, id types.ClaimID, worker string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processing_flags WHERE claim_id = $1 AND worker = $2`,
		id.String(), worker)
	return mapError(err)
}

// StaleClaims returns non-forgotten claims past their staleness horizon.
func (s *ClaimStore) StaleClaims(ctx context.Context, now time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE staleness_at < $1 AND status != $2
		ORDER BY staleness_at ASC LIMIT $3`,
		now, string(types.StatusForgotten), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// InactiveClaims returns claims at the tier not accessed since the cutoff.
func (s *ClaimStore) InactiveClaims(ctx context.Context, tier types.Tier, cutoff time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE tier = $1 AND status IN ($2, $3)
		  AND COALESCE(last_accessed, created_at) < $4
		ORDER BY COALESCE(last_accessed, created_at) ASC LIMIT $5`,
		string(tier), string(types.StatusActive), string(types.StatusChallenged), cutoff, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ExpiredEphemeral returns ephemeral claims whose TTL elapsed.
func (s *ClaimStore) ExpiredEphemeral(ctx context.Context, now time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE tier = $1 AND status IN ($2, $3) AND ttl_seconds IS NOT NULL
		  AND created_at + make_interval(secs => ttl_seconds) < $4
		ORDER BY id ASC LIMIT $5`,
		string(types.TierEphemeral), string(types.StatusActive),
		string(types.StatusChallenged), now, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ForgottenBefore returns ids of forgotten claims older than the cutoff.
func (s *ClaimStore) ForgottenBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.ClaimID, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM claims WHERE status = $1 AND last_modified < $2
		ORDER BY id ASC LIMIT $3
	`, string(types.StatusForgotten), cutoff, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanIDs(rows)
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

// ContradictionCandidates returns structurally aligned pairs, older claim
// first.
func (s *ClaimStore) ContradictionCandidates(ctx context.Context, limit int) ([]storage.ContradictionCandidate, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, b.id FROM claims a
		JOIN claims b ON a.namespace = b.namespace
			AND a.subject = b.subject AND a.predicate = b.predicate
			AND a.object != b.object AND a.id < b.id
		WHERE a.status IN ($1, $2) AND b.status IN ($1, $2)
		LIMIT $3
	`, string(types.StatusActive), string(types.StatusChallenged), limit)
	if err != nil {
		return nil, mapError(err)
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
			return nil, fmt.Errorf("postgres: corrupt claim id: %w", storage.ErrCorrupt)
		}
		bID, err := types.ParseClaimID(p.b)
		if err != nil {
			return nil, fmt.Errorf("postgres: corrupt claim id: %w", storage.ErrCorrupt)
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

// ClaimsAtTier returns recent active/challenged claims at the tier in the
// namespace.
func (s *ClaimStore) ClaimsAtTier(ctx context.Context, namespace string, tier types.Tier, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE namespace = $1 AND tier = $2 AND status IN ($3, $4)
		ORDER BY id DESC LIMIT $5`,
		namespace, string(tier), string(types.StatusActive), string(types.StatusChallenged), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// IterateEmbeddings streams (id, embedding) for non-forgotten claims.
func (s *ClaimStore) IterateEmbeddings(ctx context.Context, fn func(id types.ClaimID, embedding []float32) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding FROM claims
		WHERE status != $1 AND embedding IS NOT NULL ORDER BY id ASC
	`, string(types.StatusForgotten))
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		var embedding []float32
		if s.pgvectorAvailable {
			var vec pgvector.Vector
			if err := rows.Scan(&raw, &vec); err != nil {
				return mapError(err)
			}
			embedding = vec.Slice()
		} else {
			var blob []byte
			if err := rows.Scan(&raw, &blob); err != nil {
				return mapError(err)
			}
			embedding = decodeEmbedding(blob)
		}
		id, err := types.ParseClaimID(raw)
		if err != nil {
			return fmt.Errorf("postgres: corrupt claim id: %w", storage.ErrCorrupt)
		}
		if embedding == nil {
			continue
		}
		if err := fn(id, embedding); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryStructural returns claims matching the filter, sorted by id.
func (s *ClaimStore) QueryStructural(ctx context.Context, filter storage.StructuralFilter) ([]types.Claim, error) {
	filter.Normalize()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Subject != "" {
		conds = append(conds, "subject = "+arg(filter.Subject))
	}
	if filter.Predicate != "" {
		conds = append(conds, "predicate = "+arg(filter.Predicate))
	}
	if filter.Object != "" {
		conds = append(conds, "object = "+arg(filter.Object))
	}
	if filter.Namespace != "" {
		pattern, err := types.ParseNamespacePattern(filter.Namespace)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalid, err)
		}
		if !pattern.Recursive {
			conds = append(conds, "namespace = "+arg(pattern.Prefix))
		} else {
			cond := fmt.Sprintf("(namespace = %s OR namespace LIKE %s)",
				arg(pattern.Prefix), arg(escapeLike(pattern.Prefix)+"/%"))
			if pattern.MaxExtraDepth >= 0 {
				cond += fmt.Sprintf(
					" AND (LENGTH(namespace) - LENGTH(REPLACE(namespace, '/', ''))) - %d <= %d",
					strings.Count(pattern.Prefix, "/"), pattern.MaxExtraDepth)
			}
			conds = append(conds, cond)
		}
	}
	if len(filter.Tiers) > 0 {
		placeholders := make([]string, len(filter.Tiers))
		for i, t := range filter.Tiers {
			placeholders[i] = arg(string(t))
		}
		conds = append(conds, "tier IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.AllStatuses {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = arg(string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.MinLo > 0 {
		conds = append(conds, "conf_lo >= "+arg(filter.MinLo))
	}
	if filter.MinHi > 0 {
		conds = append(conds, "conf_hi >= "+arg(filter.MinHi))
	}
	if !filter.ModifiedSince.IsZero() {
		conds = append(conds, "last_modified >= "+arg(filter.ModifiedSince))
	}
	if !filter.ModifiedUntil.IsZero() {
		conds = append(conds, "last_modified < "+arg(filter.ModifiedUntil))
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = "+arg(filter.SessionID))
	}

	query := `SELECT ` + claimColumns + ` FROM claims`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC LIMIT " + arg(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: structural query: %w", mapError(err))
	}
	defer rows.Close()
	return scanClaims(rows)
}

// QueryTemporal returns claims created in [since, until).
func (s *ClaimStore) QueryTemporal(ctx context.Context, since, until time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	if limit > storage.MaxQueryLimit {
		limit = storage.MaxQueryLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE created_at >= $1 AND created_at < $2 ORDER BY id ASC LIMIT $3`,
		since, until, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ListNamespaces returns distinct namespaces under prefix.
func (s *ClaimStore) ListNamespaces(ctx context.Context, prefix string) ([]string, error) {
	var (
		query = `SELECT DISTINCT namespace FROM claims`
		args  []any
	)
	if prefix != "" {
		query += ` WHERE namespace = $1 OR namespace LIKE $2`
		args = append(args, prefix, escapeLike(prefix)+"/%")
	}
	query += ` ORDER BY namespace ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, mapError(err)
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
