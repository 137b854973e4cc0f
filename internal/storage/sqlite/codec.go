package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// claimSelect is the shared column list for claim scans. Keep in sync with
// scanClaim / scanClaims.
const claimSelect = `
	SELECT id, namespace, subject, predicate, object, raw_expression,
	       embedding, conf_lo, conf_hi, tier, status,
	       created_at, last_modified, last_accessed, access_count,
	       staleness_at, ttl_seconds, valid_from, valid_until, session_id
	FROM claims`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*types.Claim, error) {
	var (
		c            types.Claim
		rawID        string
		embedding    []byte
		tier, status string
		lastAccessed sql.NullTime
		ttlSeconds   sql.NullInt64
		validFrom    sql.NullTime
		validUntil   sql.NullTime
		sessionID    sql.NullString
	)

	err := row.Scan(
		&rawID, &c.Namespace, &c.Subject, &c.Predicate, &c.Object, &c.RawExpression,
		&embedding, &c.BaseConfidence.Lo, &c.BaseConfidence.Hi, &tier, &status,
		&c.CreatedAt, &c.LastModified, &lastAccessed, &c.AccessCount,
		&c.StalenessAt, &ttlSeconds, &validFrom, &validUntil, &sessionID,
	)
	if err != nil {
		return nil, err
	}

	id, err := types.ParseClaimID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt claim id %q: %w", rawID, storage.ErrCorrupt)
	}
	c.ID = id
	c.Tier = types.Tier(tier)
	c.Status = types.Status(status)
	c.Embedding = decodeEmbedding(embedding)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		c.LastAccessed = &t
	}
	if ttlSeconds.Valid {
		d := time.Duration(ttlSeconds.Int64) * time.Second
		c.TTL = &d
	}
	if validFrom.Valid {
		t := validFrom.Time
		c.ValidFrom = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		c.ValidUntil = &t
	}
	c.SessionID = sessionID.String

	return &c, nil
}

func scanClaims(rows *sql.Rows) ([]types.Claim, error) {
	var claims []types.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

func scanRelationships(rows *sql.Rows) ([]types.Relationship, error) {
	var rels []types.Relationship
	for rows.Next() {
		var (
			r                rel
			relationshipType string
		)
		if err := rows.Scan(&r.source, &r.target, &relationshipType, &r.strength, &r.createdAt); err != nil {
			return nil, err
		}
		source, err := types.ParseClaimID(r.source)
		if err != nil {
			return nil, fmt.Errorf("corrupt relationship source: %w", storage.ErrCorrupt)
		}
		target, err := types.ParseClaimID(r.target)
		if err != nil {
			return nil, fmt.Errorf("corrupt relationship target: %w", storage.ErrCorrupt)
		}
		rels = append(rels, types.Relationship{
			SourceID:  source,
			TargetID:  target,
			Type:      types.RelationType(relationshipType),
			Strength:  r.strength,
			CreatedAt: r.createdAt,
		})
	}
	return rels, rows.Err()
}

type rel struct {
	source, target string
	strength       float64
	createdAt      time.Time
}

// encodeEmbedding serializes a vector as little-endian float32, the
// instance-wide wire and storage format for embeddings.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding deserializes a little-endian float32 vector. A buffer
// whose length is not a multiple of 4 yields nil; the caller treats the
// claim as unembedded and the rebuild path re-derives it.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableSeconds(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.Seconds()), Valid: true}
}
