package sqlite

// SchemaVersion is the current on-disk schema version, recorded in
// schema_info. Opening a database with a newer version fails rather than
// guessing at forward compatibility.
const SchemaVersion = 1

// Schema is the complete DDL for the claim store. All statements are
// idempotent so the schema can be applied on every open.
//
// Claim ids are 26-character ULID strings; their lexicographic order is
// creation-time order.
const Schema = `
CREATE TABLE IF NOT EXISTS claims (
	id             TEXT PRIMARY KEY,
	namespace      TEXT NOT NULL,
	subject        TEXT NOT NULL,
	predicate      TEXT NOT NULL,
	object         TEXT NOT NULL,
	raw_expression TEXT NOT NULL,
	embedding      BLOB,
	conf_lo        REAL NOT NULL,
	conf_hi        REAL NOT NULL,
	tier           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     TIMESTAMP NOT NULL,
	last_modified  TIMESTAMP NOT NULL,
	last_accessed  TIMESTAMP,
	access_count   INTEGER NOT NULL DEFAULT 0,
	staleness_at   TIMESTAMP NOT NULL,
	ttl_seconds    INTEGER,
	valid_from     TIMESTAMP,
	valid_until    TIMESTAMP,
	session_id     TEXT
);

CREATE INDEX IF NOT EXISTS idx_claims_triple
	ON claims(namespace, subject, predicate);
CREATE INDEX IF NOT EXISTS idx_claims_namespace ON claims(namespace);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_tier ON claims(tier);
CREATE INDEX IF NOT EXISTS idx_claims_staleness ON claims(staleness_at);
CREATE INDEX IF NOT EXISTS idx_claims_session ON claims(session_id);

CREATE TABLE IF NOT EXISTS provenance (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	claim_id                TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	source_type             TEXT NOT NULL,
	source_id               TEXT NOT NULL,
	timestamp               TIMESTAMP NOT NULL,
	confidence_contribution REAL NOT NULL,
	context                 TEXT
);

CREATE INDEX IF NOT EXISTS idx_provenance_claim ON provenance(claim_id);

CREATE TABLE IF NOT EXISTS relationships (
	source_id     TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	target_id     TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	strength      REAL NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (source_id, target_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS event_log (
	id        TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	claim_id  TEXT NOT NULL,
	actor     TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	payload   TEXT
);

CREATE INDEX IF NOT EXISTS idx_event_log_time ON event_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_event_log_claim ON event_log(claim_id);

CREATE TABLE IF NOT EXISTS confidence_cache (
	claim_id       TEXT PRIMARY KEY REFERENCES claims(id) ON DELETE CASCADE,
	eff_lo         REAL NOT NULL DEFAULT 0,
	eff_hi         REAL NOT NULL DEFAULT 0,
	computed_at    TIMESTAMP,
	version        INTEGER NOT NULL DEFAULT 0,
	invalidated    INTEGER NOT NULL DEFAULT 1,
	invalidated_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cache_invalidated
	ON confidence_cache(invalidated, invalidated_at);

CREATE TABLE IF NOT EXISTS processing_flags (
	claim_id   TEXT PRIMARY KEY REFERENCES claims(id) ON DELETE CASCADE,
	worker     TEXT NOT NULL,
	claimed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
	version    INTEGER NOT NULL,
	applied_at TIMESTAMP NOT NULL
);
`
