package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// AppendEvent writes one audit record. The log is append-only and
// single-writer; it shares the store's write serialization.
func (s *ClaimStore) AppendEvent(ctx context.Context, ev *types.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: event is required", storage.ErrInvalid)
	}

	tx, err := s.w.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if err := appendEventTx(ctx, tx, ev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
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
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Kind), ev.ClaimID.String(), ev.Actor, ev.Timestamp,
		nullableString(ev.Payload))
	if err != nil {
		return fmt.Errorf("sqlite: failed to append event: %w", mapError(err))
	}
	return nil
}

// EventsSince returns events at or after since, oldest first.
func (s *ClaimStore) EventsSince(ctx context.Context, since time.Time, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	if limit > storage.MaxQueryLimit {
		limit = storage.MaxQueryLimit
	}

	rows, err := s.r.QueryContext(ctx, `
		SELECT id, kind, claim_id, actor, timestamp, payload
		FROM event_log
		WHERE timestamp >= ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: events query: %w", mapError(err))
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
			return nil, fmt.Errorf("sqlite: corrupt event claim id: %w", storage.ErrCorrupt)
		}
		ev.Kind = types.EventKind(kind)
		ev.ClaimID = cid
		ev.Payload = payload.String
		events = append(events, ev)
	}
	return events, rows.Err()
}
