package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// GetCache returns the confidence cache row for a claim.
func (s *ClaimStore) GetCache(ctx context.Context, id types.ClaimID) (*storage.CacheEntry, error) {
	var (
		entry       storage.CacheEntry
		computedAt  sql.NullTime
		invalidated int
	)
	err := s.r.QueryRowContext(ctx, `
		SELECT eff_lo, eff_hi, computed_at, version, invalidated
		FROM confidence_cache
		WHERE claim_id = ?
	`, id.String()).Scan(&entry.Interval.Lo, &entry.Interval.Hi, &computedAt, &entry.Version, &invalidated)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get cache row: %w", mapError(err))
	}

	entry.ClaimID = id
	entry.ComputedAt = computedAt.Time
	entry.Invalidated = invalidated != 0
	return &entry, nil
}

// PutCache writes a computed interval. The write is rejected with
// ErrConflict when the row's version has advanced past entry.Version: a
// concurrent invalidation won the race and the value is already stale.
func (s *ClaimStore) PutCache(ctx context.Context, entry *storage.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: cache entry is required", storage.ErrInvalid)
	}
	if err := entry.Interval.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	res, err := s.w.ExecContext(ctx, `
		UPDATE confidence_cache
		SET eff_lo = ?, eff_hi = ?, computed_at = ?, invalidated = 0
		WHERE claim_id = ? AND version = ?
	`, entry.Interval.Lo, entry.Interval.Hi, entry.ComputedAt,
		entry.ClaimID.String(), entry.Version)
	if err != nil {
		return fmt.Errorf("sqlite: failed to put cache row: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		// Either the row is missing or the version moved on.
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

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if err := invalidateCacheTx(ctx, tx, time.Now().UTC(), ids...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// invalidateCacheTx marks cache rows stale, creating rows for claims that
// never had one.
func invalidateCacheTx(ctx context.Context, tx *sql.Tx, now time.Time, ids ...types.ClaimID) error {
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO confidence_cache (claim_id, version, invalidated, invalidated_at)
			VALUES (?, 1, 1, ?)
			ON CONFLICT(claim_id) DO UPDATE SET
				version = version + 1,
				invalidated = 1,
				invalidated_at = excluded.invalidated_at
		`, id.String(), now)
		if err != nil {
			return fmt.Errorf("sqlite: failed to invalidate cache: %w", mapError(err))
		}
	}
	return nil
}

// InvalidatedCacheIDs returns up to limit claim ids whose cache rows are
// marked invalid, oldest invalidation first.
func (s *ClaimStore) InvalidatedCacheIDs(ctx context.Context, limit int) ([]types.ClaimID, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, `
		SELECT claim_id FROM confidence_cache
		WHERE invalidated = 1
		ORDER BY invalidated_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: invalidated cache query: %w", mapError(err))
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
			return nil, fmt.Errorf("sqlite: corrupt cache claim id: %w", storage.ErrCorrupt)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
