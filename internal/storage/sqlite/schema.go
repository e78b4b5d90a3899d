package sqlite

// Schema is the embedded SQLite schema for the entity memory graph.
// All statements are idempotent so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL,
    name                 TEXT NOT NULL,
    kind                 TEXT NOT NULL DEFAULT 'other',
    relationship         TEXT NOT NULL DEFAULT '',
    confirmed            INTEGER NOT NULL DEFAULT 0,
    mention_count        INTEGER NOT NULL DEFAULT 0,
    first_mentioned_at   TIMESTAMP NOT NULL,
    last_mentioned_at    TIMESTAMP NOT NULL,
    context_notes        TEXT,              -- JSON array of strings
    summary              TEXT NOT NULL DEFAULT '',
    topics               TEXT,              -- JSON array of strings
    last_consolidated_at TIMESTAMP,
    importance           TEXT NOT NULL DEFAULT 'medium',
    importance_score     REAL NOT NULL DEFAULT 0.5,
    status               TEXT NOT NULL DEFAULT 'active',
    supersedes_id        TEXT,
    superseded_by_id     TEXT,
    last_decay_at        TIMESTAMP,
    embedding            TEXT,              -- JSON array of floats
    embedding_model      TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMP NOT NULL,
    updated_at           TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_owner_status ON entities(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_entities_owner_name   ON entities(owner_id, name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_entities_superseded   ON entities(superseded_by_id);

CREATE TABLE IF NOT EXISTS facts (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    entity_id   TEXT NOT NULL REFERENCES entities(id),
    predicate   TEXT NOT NULL,
    object_text TEXT NOT NULL,
    confidence  REAL NOT NULL DEFAULT 0.5,
    created_at  TIMESTAMP NOT NULL
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
    confidence        REAL NOT NULL DEFAULT 0.5,
    status            TEXT NOT NULL DEFAULT 'active',
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_subject
    ON relationships(owner_id, subject_name COLLATE NOCASE, predicate_family, status);

CREATE TABLE IF NOT EXISTS inferences (
    id                  TEXT PRIMARY KEY,
    owner_id            TEXT NOT NULL,
    inference_type      TEXT NOT NULL,
    subject_entities    TEXT,              -- JSON array of strings
    text                TEXT NOT NULL,
    confidence          REAL NOT NULL DEFAULT 0.5,
    supporting_evidence TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    expires_at          TIMESTAMP NOT NULL,
    created_at          TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inferences_owner_status ON inferences(owner_id, status);

CREATE TABLE IF NOT EXISTS notes (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    text        TEXT NOT NULL,
    source_type TEXT NOT NULL DEFAULT '',
    source_id   TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id, created_at DESC);
`
