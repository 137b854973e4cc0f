// Package sqlite implements the authoritative claim store on SQLite.
//
// The store follows a WAL-style write discipline: all writes go through a
// single connection so SQLite never sees two concurrent writers, while reads
// run on a separate connection pool and proceed in parallel without blocking
// the writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// Ensure *ClaimStore satisfies the capability contract at compile time.
var _ storage.ClaimStore = (*ClaimStore)(nil)

// ClaimStore implements storage.ClaimStore using SQLite.
type ClaimStore struct {
	// w is the single-connection write handle; r serves parallel reads.
	// For in-memory databases both point at the same handle, because two
	// handles would open two distinct databases.
	w *sql.DB
	r *sql.DB

	// maxNamespaceDepth bounds claim namespaces on insert.
	maxNamespaceDepth int

	// dimension is the instance embedding dimension; 0 disables the check.
	dimension int
}

// Options configure a ClaimStore.
type Options struct {
	// MaxNamespaceDepth bounds namespace nesting (slash count).
	// Zero applies types.DefaultMaxNamespaceDepth.
	MaxNamespaceDepth int

	// EmbeddingDimension, when non-zero, rejects claim embeddings of any
	// other length with ErrInvalid.
	EmbeddingDimension int

	// ReadConns sizes the read pool for file-backed databases (default 4).
	ReadConns int
}

// NewClaimStore opens (creating if needed) the claim store at dsn.
// Use ":memory:" for tests.
func NewClaimStore(dsn string, opts Options) (*ClaimStore, error) {
	if opts.MaxNamespaceDepth <= 0 {
		opts.MaxNamespaceDepth = types.DefaultMaxNamespaceDepth
	}
	if opts.ReadConns <= 0 {
		opts.ReadConns = 4
	}

	w, err := openConn(dsn)
	if err != nil {
		return nil, err
	}

	// Apply schema and record the version on the write handle.
	if _, err := w.Exec(Schema); err != nil {
		w.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	if err := checkSchemaVersion(w); err != nil {
		w.Close()
		return nil, err
	}

	r := w
	if !isMemoryDSN(dsn) {
		r, err = openConn(dsn)
		if err != nil {
			w.Close()
			return nil, err
		}
		r.SetMaxOpenConns(opts.ReadConns)
		r.SetMaxIdleConns(opts.ReadConns)
	}

	return &ClaimStore{
		w:                 w,
		r:                 r,
		maxNamespaceDepth: opts.MaxNamespaceDepth,
		dimension:         opts.EmbeddingDimension,
	}, nil
}

// openConn opens a connection with WAL mode, busy timeout, and foreign keys
// enabled. The handle is capped at one connection; callers widen the read
// handle afterwards.
func openConn(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// checkSchemaVersion records the schema version on first open and rejects
// databases written by a newer schema.
func checkSchemaVersion(db *sql.DB) error {
	var version int
	err := db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.Exec("INSERT INTO schema_info (version, applied_at) VALUES (?, ?)",
			SchemaVersion, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("sqlite: failed to record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("sqlite: failed to read schema version: %w", err)
	case version > SchemaVersion:
		return fmt.Errorf("sqlite: database schema version %d is newer than supported %d: %w",
			version, SchemaVersion, storage.ErrUnsupported)
	default:
		return nil
	}
}

// Close releases both handles.
func (s *ClaimStore) Close() error {
	var first error
	if s.r != s.w {
		first = s.r.Close()
	}
	if err := s.w.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// DB exposes the write handle for the backup service.
func (s *ClaimStore) DB() *sql.DB {
	return s.w
}

// mapError translates driver errors into the storage taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.ErrTimeout
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint"):
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint"):
		return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return fmt.Errorf("%w: %v", storage.ErrBusy, err)
	}
	return err
}

// InsertClaim stores a new claim, its first provenance entry, and an assert
// event in one transaction.
func (s *ClaimStore) InsertClaim(ctx context.Context, claim *types.Claim, prov *types.ProvenanceEntry, actor string) error {
	if claim == nil {
		return fmt.Errorf("%w: claim is required", storage.ErrInvalid)
	}
	if claim.ID.IsZero() {
		return fmt.Errorf("%w: claim id is required", storage.ErrInvalid)
	}
	if err := claim.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	if err := types.ValidateNamespace(claim.Namespace, s.maxNamespaceDepth); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	if s.dimension > 0 && len(claim.Embedding) != 0 && len(claim.Embedding) != s.dimension {
		return fmt.Errorf("%w: embedding length %d does not match instance dimension %d",
			storage.ErrInvalid, len(claim.Embedding), s.dimension)
	}
	if prov != nil {
		if err := prov.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
		}
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO claims (
			id, namespace, subject, predicate, object, raw_expression,
			embedding, conf_lo, conf_hi, tier, status,
			created_at, last_modified, last_accessed, access_count,
			staleness_at, ttl_seconds, valid_from, valid_until, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		claim.ID.String(),
		claim.Namespace,
		claim.Subject,
		claim.Predicate,
		claim.Object,
		claim.RawExpression,
		encodeEmbedding(claim.Embedding),
		claim.BaseConfidence.Lo,
		claim.BaseConfidence.Hi,
		string(claim.Tier),
		string(claim.Status),
		claim.CreatedAt,
		claim.LastModified,
		nullableTime(claim.LastAccessed),
		claim.AccessCount,
		claim.StalenessAt,
		nullableSeconds(claim.TTL),
		nullableTime(claim.ValidFrom),
		nullableTime(claim.ValidUntil),
		nullableString(claim.SessionID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert claim: %w", mapError(err))
	}

	if prov != nil {
		if err := insertProvenanceTx(ctx, tx, claim.ID, prov); err != nil {
			return err
		}
	}

	// Seed the cache row as invalidated so the recompute janitor picks the
	// claim up without a separate registration step.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO confidence_cache (claim_id, version, invalidated, invalidated_at)
		VALUES (?, 1, 1, ?)
	`, claim.ID.String(), claim.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to seed confidence cache: %w", mapError(err))
	}

	if err := appendEventTx(ctx, tx, &types.Event{
		Kind:      types.EventAssert,
		ClaimID:   claim.ID,
		Actor:     actor,
		Timestamp: claim.CreatedAt,
		Payload:   fmt.Sprintf("tier=%s ns=%s", claim.Tier, claim.Namespace),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// Get retrieves a claim by id, regardless of status.
func (s *ClaimStore) Get(ctx context.Context, id types.ClaimID) (*types.Claim, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: claim id is required", storage.ErrInvalid)
	}

	row := s.r.QueryRowContext(ctx, claimSelect+` WHERE id = ?`, id.String())
	claim, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get claim: %w", mapError(err))
	}
	return claim, nil
}

// GetByTriple finds the non-forgotten claim with the exact triple in the
// namespace. Structural dedup fallback.
func (s *ClaimStore) GetByTriple(ctx context.Context, namespace, subject, predicate, object string) (*types.Claim, error) {
	row := s.r.QueryRowContext(ctx, claimSelect+`
		WHERE namespace = ? AND subject = ? AND predicate = ? AND object = ?
		  AND status != ?
		ORDER BY id DESC
		LIMIT 1
	`, namespace, strings.TrimSpace(subject), strings.TrimSpace(predicate), strings.TrimSpace(object),
		string(types.StatusForgotten))

	claim, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get claim by triple: %w", mapError(err))
	}
	return claim, nil
}

// AddProvenance appends a provenance entry and invalidates the confidence
// cache of the claim and its related neighbors.
func (s *ClaimStore) AddProvenance(ctx context.Context, id types.ClaimID, entry *types.ProvenanceEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: provenance entry is required", storage.ErrInvalid)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if err := requireClaimTx(ctx, tx, id); err != nil {
		return err
	}
	if err := insertProvenanceTx(ctx, tx, id, entry); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE claims SET last_modified = ? WHERE id = ?`, entry.Timestamp, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch claim: %w", mapError(err))
	}

	neighbors, err := neighborIDsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := invalidateCacheTx(ctx, tx, entry.Timestamp, append(neighbors, id)...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// ProvenanceFor returns all provenance entries for a claim, oldest first.
func (s *ClaimStore) ProvenanceFor(ctx context.Context, id types.ClaimID) ([]types.ProvenanceEntry, error) {
	rows, err := s.r.QueryContext(ctx, `
		SELECT claim_id, source_type, source_id, timestamp, confidence_contribution, context
		FROM provenance
		WHERE claim_id = ?
		ORDER BY id ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query provenance: %w", mapError(err))
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
			return nil, fmt.Errorf("sqlite: failed to scan provenance: %w", err)
		}
		cid, err := types.ParseClaimID(rawID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt provenance claim id: %w", storage.ErrCorrupt)
		}
		e.ClaimID = cid
		e.SourceType = types.SourceType(rawType)
		e.Context = ctxText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddRelationship stores a directed edge between two existing claims.
func (s *ClaimStore) AddRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is required", storage.ErrInvalid)
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (source_id, target_id, relation_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rel.SourceID.String(), rel.TargetID.String(), string(rel.Type), rel.Strength, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert relationship: %w", mapError(err))
	}

	// A new edge changes the effective confidence of both endpoints.
	if err := invalidateCacheTx(ctx, tx, rel.CreatedAt, rel.SourceID, rel.TargetID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// RemoveRelationship deletes an edge and invalidates both endpoint caches.
func (s *ClaimStore) RemoveRelationship(ctx context.Context, source, target types.ClaimID, relType types.RelationType) error {
	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE source_id = ? AND target_id = ? AND relation_type = ?
	`, source.String(), target.String(), string(relType))
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete relationship: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	if err := invalidateCacheTx(ctx, tx, time.Now().UTC(), source, target); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// RelationshipsFor returns all edges where id is source or target.
func (s *ClaimStore) RelationshipsFor(ctx context.Context, id types.ClaimID) ([]types.Relationship, error) {
	rows, err := s.r.QueryContext(ctx, `
		SELECT source_id, target_id, relation_type, strength, created_at
		FROM relationships
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at ASC
	`, id.String(), id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query relationships: %w", mapError(err))
	}
	defer rows.Close()

	return scanRelationships(rows)
}

// UpdateStatus applies a status transition, enforcing the status machine.
func (s *ClaimStore) UpdateStatus(ctx context.Context, id types.ClaimID, newStatus types.Status, actor string) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: invalid status %q", storage.ErrInvalid, newStatus)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM claims WHERE id = ?`, id.String()).Scan(&current)
	if err != nil {
		return fmt.Errorf("sqlite: failed to read status: %w", mapError(err))
	}

	if !types.Status(current).CanTransition(newStatus) {
		return fmt.Errorf("%w: illegal status transition %s → %s", storage.ErrInvalid, current, newStatus)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE claims SET status = ?, last_modified = ? WHERE id = ?`,
		string(newStatus), now, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to update status: %w", mapError(err))
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
		Kind:      kind,
		ClaimID:   id,
		Actor:     actor,
		Timestamp: now,
		Payload:   fmt.Sprintf("%s -> %s", current, newStatus),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// SetTier records a tier change and the matching promote/demote event.
func (s *ClaimStore) SetTier(ctx context.Context, id types.ClaimID, tier types.Tier, actor string) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: invalid tier %q", storage.ErrInvalid, tier)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT tier FROM claims WHERE id = ?`, id.String()).Scan(&current)
	if err != nil {
		return fmt.Errorf("sqlite: failed to read tier: %w", mapError(err))
	}
	if types.Tier(current) == tier {
		return tx.Commit()
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE claims SET tier = ?, last_modified = ? WHERE id = ?`,
		string(tier), now, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to update tier: %w", mapError(err))
	}

	kind := types.EventPromote
	if tier.Rank() < types.Tier(current).Rank() {
		kind = types.EventDemote
	}
	if err := appendEventTx(ctx, tx, &types.Event{
		Kind:      kind,
		ClaimID:   id,
		Actor:     actor,
		Timestamp: now,
		Payload:   fmt.Sprintf("%s -> %s", current, tier),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// IncrementAccess atomically bumps access_count and last_accessed.
func (s *ClaimStore) IncrementAccess(ctx context.Context, id types.ClaimID) error {
	res, err := s.w.ExecContext(ctx, `
		UPDATE claims
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment access: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchStaleness moves staleness_at forward, typically on corroboration.
func (s *ClaimStore) TouchStaleness(ctx context.Context, id types.ClaimID, stalenessAt time.Time) error {
	res, err := s.w.ExecContext(ctx,
		`UPDATE claims SET staleness_at = ? WHERE id = ?`, stalenessAt, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch staleness: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBaseConfidence rewrites the stored base interval and pushes
// staleness_at forward, invalidating the claim's cache row.
func (s *ClaimStore) UpdateBaseConfidence(ctx context.Context, id types.ClaimID, interval types.ConfidenceInterval, stalenessAt time.Time) error {
	if err := interval.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE claims
		SET conf_lo = ?, conf_hi = ?, staleness_at = ?, last_modified = ?
		WHERE id = ?
	`, interval.Lo, interval.Hi, stalenessAt, now, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: failed to update base confidence: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	if err := invalidateCacheTx(ctx, tx, now, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// HardDelete removes claims with their provenance, relationships, and cache
// rows (foreign-key cascade). Returns surviving neighbors whose caches now
// need invalidation.
func (s *ClaimStore) HardDelete(ctx context.Context, ids []types.ClaimID) ([]types.ClaimID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	deleted := make(map[types.ClaimID]bool, len(ids))
	neighborSet := make(map[types.ClaimID]bool)
	for _, id := range ids {
		deleted[id] = true
	}
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, id.String()); err != nil {
			return nil, fmt.Errorf("sqlite: failed to delete claim: %w", mapError(err))
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

// requireClaimTx returns ErrNotFound when the claim is absent.
func requireClaimTx(ctx context.Context, tx *sql.Tx, id types.ClaimID) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return mapError(err)
	}
	return nil
}

func insertProvenanceTx(ctx context.Context, tx *sql.Tx, id types.ClaimID, entry *types.ProvenanceEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO provenance (claim_id, source_type, source_id, timestamp, confidence_contribution, context)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), string(entry.SourceType), entry.SourceID, entry.Timestamp,
		entry.ConfidenceContribution, nullableString(entry.Context))
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert provenance: %w", mapError(err))
	}
	return nil
}

// neighborIDsTx returns the other endpoint of every edge touching id.
func neighborIDsTx(ctx context.Context, tx *sql.Tx, id types.ClaimID) ([]types.ClaimID, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT target_id FROM relationships WHERE source_id = ?
		UNION
		SELECT source_id FROM relationships WHERE target_id = ?
	`, id.String(), id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query neighbors: %w", mapError(err))
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
			return nil, fmt.Errorf("sqlite: corrupt relationship endpoint: %w", storage.ErrCorrupt)
		}
		neighbors = append(neighbors, nid)
	}
	return neighbors, rows.Err()
}
