package storage

// SchemaVersion is recorded in schema_migrations once schema has been applied.
const SchemaVersion = 1

// Entities are stored as JSON documents in the data column; the remaining
// columns exist for lookups and ordering. Timestamps use a fixed-width UTC
// layout so they sort lexically.
const schema = `
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned TEXT
);

CREATE TABLE IF NOT EXISTS sentences (
    id TEXT PRIMARY KEY,
    language_code TEXT NOT NULL,
    created_at TEXT NOT NULL,
    content_hash TEXT,
    source_id INTEGER,
    data TEXT NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_sentences_language ON sentences(language_code);
CREATE INDEX IF NOT EXISTS idx_sentences_hash ON sentences(content_hash);

CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    sentence_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_events_sentence ON review_events(sentence_id, timestamp);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    is_complete INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audio (
    sentence_id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_audio (
    id TEXT PRIMARY KEY,
    language_code TEXT NOT NULL,
    uploaded_at TEXT NOT NULL,
    metadata TEXT NOT NULL,
    data BLOB NOT NULL
);
`
