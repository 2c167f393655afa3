package sqlite

// Schema contains the SQL statements creating the meetgraph schema.
// JSON-typed columns store serialized maps and string arrays; SQLite has no
// native array type and the payloads are read back whole, never queried
// field-by-field except through the vector payload filters.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    transcript TEXT NOT NULL,
    date TIMESTAMP NOT NULL,
    participants TEXT,
    summary TEXT,
    topics TEXT,
    decisions TEXT,
    action_items TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    memory_count INTEGER NOT NULL DEFAULT 0,
    entity_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    meeting_id TEXT NOT NULL REFERENCES meetings(id),
    content TEXT NOT NULL,
    speaker TEXT,
    ts TEXT,
    memory_type TEXT,
    importance TEXT,
    entity_mentions TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_meeting ON memories(meeting_id);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    attributes TEXT,
    first_seen TIMESTAMP NOT NULL,
    last_updated TIMESTAMP NOT NULL,
    UNIQUE(normalized_name, type)
);

CREATE INDEX IF NOT EXISTS idx_entities_normalized ON entities(normalized_name);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS entity_states (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    state TEXT NOT NULL,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    confidence REAL NOT NULL DEFAULT 1.0
);

CREATE INDEX IF NOT EXISTS idx_entity_states_entity ON entity_states(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS state_transitions (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    from_state TEXT,
    to_state TEXT NOT NULL,
    changed_fields TEXT NOT NULL,
    reason TEXT,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_entity ON state_transitions(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS entity_relationships (
    id TEXT PRIMARY KEY,
    from_entity_id TEXT NOT NULL REFERENCES entities(id),
    to_entity_id TEXT NOT NULL REFERENCES entities(id),
    type TEXT NOT NULL,
    attributes TEXT,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON entity_relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON entity_relationships(to_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_dedup ON entity_relationships(from_entity_id, to_entity_id, type, active);
`

// VectorSchema creates one BLOB-backed vector table per collection.
// Embeddings are little-endian float32; payloads are JSON.
const VectorSchema = `
CREATE TABLE IF NOT EXISTS vectors_memories (
    id TEXT PRIMARY KEY,
    embedding BLOB NOT NULL,
    payload TEXT
);

CREATE TABLE IF NOT EXISTS vectors_entity_names (
    id TEXT PRIMARY KEY,
    embedding BLOB NOT NULL,
    payload TEXT
);
`
