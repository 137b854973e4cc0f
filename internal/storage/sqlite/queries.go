package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// QueryStructural returns claims matching the filter, sorted by id ascending.
// Namespace patterns compile to a prefix check plus a slash-count filter, so
// every mode stays on the namespace index.
func (s *ClaimStore) QueryStructural(ctx context.Context, filter storage.StructuralFilter) ([]types.Claim, error) {
	filter.Normalize()

	var (
		conds []string
		args  []any
	)

	if filter.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Predicate != "" {
		conds = append(conds, "predicate = ?")
		args = append(args, filter.Predicate)
	}
	if filter.Object != "" {
		conds = append(conds, "object = ?")
		args = append(args, filter.Object)
	}

	if filter.Namespace != "" {
		pattern, err := types.ParseNamespacePattern(filter.Namespace)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalid, err)
		}
		cond, patternArgs := namespaceCondition(pattern)
		conds = append(conds, cond)
		args = append(args, patternArgs...)
	}

	if len(filter.Tiers) > 0 {
		placeholders := make([]string, len(filter.Tiers))
		for i, t := range filter.Tiers {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, fmt.Sprintf("tier IN (%s)", strings.Join(placeholders, ", ")))
	}

	if !filter.AllStatuses {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.MinLo > 0 {
		conds = append(conds, "conf_lo >= ?")
		args = append(args, filter.MinLo)
	}
	if filter.MinHi > 0 {
		conds = append(conds, "conf_hi >= ?")
		args = append(args, filter.MinHi)
	}
	if !filter.ModifiedSince.IsZero() {
		conds = append(conds, "last_modified >= ?")
		args = append(args, filter.ModifiedSince)
	}
	if !filter.ModifiedUntil.IsZero() {
		conds = append(conds, "last_modified < ?")
		args = append(args, filter.ModifiedUntil)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}

	query := claimSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: structural query: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: structural scan: %w", err)
	}
	return claims, nil
}

// namespaceCondition compiles a namespace pattern into SQL. Depth limits
// compare slash counts arithmetically: slashes(ns) is the length difference
// after stripping slashes.
func namespaceCondition(p types.NamespacePattern) (string, []any) {
	const slashes = `(LENGTH(namespace) - LENGTH(REPLACE(namespace, '/', '')))`

	if !p.Recursive {
		return "namespace = ?", []any{p.Prefix}
	}
	recursive := "(namespace = ? OR namespace LIKE ? ESCAPE '\\')"
	likeArg := escapeLike(p.Prefix) + "/%"
	if p.MaxExtraDepth < 0 {
		return recursive, []any{p.Prefix, likeArg}
	}
	cond := fmt.Sprintf("%s AND %s - %d <= %d",
		recursive, slashes, strings.Count(p.Prefix, "/"), p.MaxExtraDepth)
	return cond, []any{p.Prefix, likeArg}
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// QueryTemporal returns claims whose created_at lies in [since, until),
// sorted by id ascending.
func (s *ClaimStore) QueryTemporal(ctx context.Context, since, until time.Time, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	if limit > storage.MaxQueryLimit {
		limit = storage.MaxQueryLimit
	}

	// The bounds apply to created_at, which has no index of its own; this
	// is not a range scan over the primary key.
	rows, err := s.r.QueryContext(ctx, claimSelect+`
		WHERE created_at >= ? AND created_at < ?
		ORDER BY id ASC
		LIMIT ?
	`, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: temporal query: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: temporal scan: %w", err)
	}
	return claims, nil
}

// ListNamespaces returns distinct namespaces matching the recursive prefix,
// sorted.
func (s *ClaimStore) ListNamespaces(ctx context.Context, prefix string) ([]string, error) {
	var (
		query = `SELECT DISTINCT namespace FROM claims`
		args  []any
	)
	if prefix != "" {
		query += ` WHERE namespace = ? OR namespace LIKE ? ESCAPE '\'`
		args = append(args, prefix, escapeLike(prefix)+"/%")
	}
	query += ` ORDER BY namespace ASC`

	rows, err := s.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list namespaces: %w", mapError(err))
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

// ClaimsAtTier returns up to limit active/challenged claims at the tier in
// the namespace, newest first. Used by the gatekeeper to assemble context.
func (s *ClaimStore) ClaimsAtTier(ctx context.Context, namespace string, tier types.Tier, limit int) ([]types.Claim, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, claimSelect+`
		WHERE namespace = ? AND tier = ? AND status IN (?, ?)
		ORDER BY id DESC
		LIMIT ?
	`, namespace, string(tier),
		string(types.StatusActive), string(types.StatusChallenged), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: claims at tier: %w", mapError(err))
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: claims at tier scan: %w", err)
	}
	return claims, nil
}

// IterateEmbeddings streams (id, embedding) for every non-forgotten claim
// that carries an embedding. Vector index rebuild input.
func (s *ClaimStore) IterateEmbeddings(ctx context.Context, fn func(id types.ClaimID, embedding []float32) error) error {
	rows, err := s.r.QueryContext(ctx, `
		SELECT id, embedding FROM claims
		WHERE status != ? AND embedding IS NOT NULL
		ORDER BY id ASC
	`, string(types.StatusForgotten))
	if err != nil {
		return fmt.Errorf("sqlite: iterate embeddings: %w", mapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw  string
			blob []byte
		)
		if err := rows.Scan(&raw, &blob); err != nil {
			return mapError(err)
		}
		id, err := types.ParseClaimID(raw)
		if err != nil {
			return fmt.Errorf("sqlite: corrupt claim id during iteration: %w", storage.ErrCorrupt)
		}
		embedding := decodeEmbedding(blob)
		if embedding == nil {
			continue
		}
		if err := fn(id, embedding); err != nil {
			return err
		}
	}
	return rows.Err()
}
