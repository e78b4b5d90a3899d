package postgres

// Schema is the PostgreSQL schema for the entity memory graph. Statements
// are idempotent; applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL,
    name                 TEXT NOT NULL,
    kind                 TEXT NOT NULL DEFAULT 'other',
    relationship         TEXT NOT NULL DEFAULT '',
    confirmed            BOOLEAN NOT NULL DEFAULT FALSE,
    mention_count        INTEGER NOT NULL DEFAULT 0,
    first_mentioned_at   TIMESTAMPTZ NOT NULL,
    last_mentioned_at    TIMESTAMPTZ NOT NULL,
    context_notes        JSONB,
    summary              TEXT NOT NULL DEFAULT '',
    topics               JSONB,
    last_consolidated_at TIMESTAMPTZ,
    importance           TEXT NOT NULL DEFAULT 'medium',
    importance_score     DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    status               TEXT NOT NULL DEFAULT 'active',
    supersedes_id        TEXT,
    superseded_by_id     TEXT,
    last_decay_at        TIMESTAMPTZ,
    embedding            JSONB,
    embedding_model      TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_owner_status ON entities(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_entities_owner_lname  ON entities(owner_id, LOWER(name));

CREATE TABLE IF NOT EXISTS facts (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    entity_id   TEXT NOT NULL REFERENCES entities(id),
    predicate   TEXT NOT NULL,
    object_text TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts(entity_id, created_at DESC);

CREATE TABLE IF NOT EXISTS relationships (
    id                TEXT PRIMARY KEY,
    owner_id          TEXT NOT NULL,
    subject_name      TEXT NOT NULL,
    predicate         TEXT NOT NULL,
    predicate_family  TEXT NOT NULL,
    object_name       TEXT NOT NULL,
    subject_entity_id TEXT,
    object_entity_id  TEXT,
    confidence        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    status            TEXT NOT NULL DEFAULT 'active',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_subject
    ON relationships(owner_id, LOWER(subject_name), predicate_family, status);

CREATE TABLE IF NOT EXISTS inferences (
    id                  TEXT PRIMARY KEY,
    owner_id            TEXT NOT NULL,
    inference_type      TEXT NOT NULL,
    subject_entities    JSONB,
    text                TEXT NOT NULL,
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    supporting_evidence TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    expires_at          TIMESTAMPTZ NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inferences_owner_status ON inferences(owner_id, status);

CREATE TABLE IF NOT EXISTS notes (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    text        TEXT NOT NULL,
    source_type TEXT NOT NULL DEFAULT '',
    source_id   TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id, created_at DESC);
`

// VectorMigration adds the pgvector column. Applied only when the
// extension is available.
const VectorMigration = `
ALTER TABLE entities ADD COLUMN IF NOT EXISTS embedding_vec vector(768);
`
