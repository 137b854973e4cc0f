package postgres

import "fmt"

// SchemaVersion is the current schema version recorded in schema_info.
const SchemaVersion = 1

// schema returns the DDL for the claim store. embeddingType is
// "vector(<dim>)" when pgvector is available and "BYTEA" otherwise; without
// pgvector, in-database semantic search degrades to Unsupported but the
// stored embeddings still feed sidecar rebuilds. All statements are
// idempotent.
func schema(embeddingType string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS claims (
	id             TEXT PRIMARY KEY,
	namespace      TEXT NOT NULL,
	subject        TEXT NOT NULL,
	predicate      TEXT NOT NULL,
	object         TEXT NOT NULL,
	raw_expression TEXT NOT NULL,
	embedding      %s,
	conf_lo        DOUBLE PRECISION NOT NULL,
	conf_hi        DOUBLE PRECISION NOT NULL,
	tier           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     TIMESTAMPTZ NOT NULL,
	last_modified  TIMESTAMPTZ NOT NULL,
	last_accessed  TIMESTAMPTZ,
	access_count   INTEGER NOT NULL DEFAULT 0,
	staleness_at   TIMESTAMPTZ NOT NULL,
	ttl_seconds    BIGINT,
	valid_from     TIMESTAMPTZ,
	valid_until    TIMESTAMPTZ,
	session_id     TEXT
);

CREATE INDEX IF NOT EXISTS idx_claims_triple ON claims(namespace, subject, predicate);
CREATE INDEX IF NOT EXISTS idx_claims_namespace ON claims(namespace);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_tier ON claims(tier);
CREATE INDEX IF NOT EXISTS idx_claims_staleness ON claims(staleness_at);

CREATE TABLE IF NOT EXISTS provenance (
	id                      BIGSERIAL PRIMARY KEY,
	claim_id                TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	source_type             TEXT NOT NULL,
	source_id               TEXT NOT NULL,
	timestamp               TIMESTAMPTZ NOT NULL,
	confidence_contribution DOUBLE PRECISION NOT NULL,
	context                 TEXT
);

CREATE INDEX IF NOT EXISTS idx_provenance_claim ON provenance(claim_id);

CREATE TABLE IF NOT EXISTS relationships (
	source_id     TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	target_id     TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	strength      DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_id, target_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS event_log (
	id        TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	claim_id  TEXT NOT NULL,
	actor     TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	payload   TEXT
);

CREATE INDEX IF NOT EXISTS idx_event_log_time ON event_log(timestamp);

CREATE TABLE IF NOT EXISTS confidence_cache (
	claim_id       TEXT PRIMARY KEY REFERENCES claims(id) ON DELETE CASCADE,
	eff_lo         DOUBLE PRECISION NOT NULL DEFAULT 0,
	eff_hi         DOUBLE PRECISION NOT NULL DEFAULT 0,
	computed_at    TIMESTAMPTZ,
	version        BIGINT NOT NULL DEFAULT 0,
	invalidated    BOOLEAN NOT NULL DEFAULT TRUE,
	invalidated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cache_invalidated ON confidence_cache(invalidated, invalidated_at);

CREATE TABLE IF NOT EXISTS processing_flags (
	claim_id   TEXT PRIMARY KEY REFERENCES claims(id) ON DELETE CASCADE,
	worker     TEXT NOT NULL,
	claimed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
	version    INTEGER NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
);
`, embeddingType)
}
