package postgres

// Schema contains the DDL for the relational tables. All statements are
// idempotent so the schema can be applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    transcript TEXT NOT NULL,
    date TIMESTAMPTZ NOT NULL,
    participants JSONB,
    summary TEXT,
    topics JSONB,
    decisions JSONB,
    action_items JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    entity_mentions JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_meeting ON memories(meeting_id);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    attributes JSONB,
    first_seen TIMESTAMPTZ NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL,
    UNIQUE(normalized_name, type)
);

CREATE INDEX IF NOT EXISTS idx_entities_normalized ON entities(normalized_name);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS entity_states (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    state JSONB NOT NULL,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0
);

CREATE INDEX IF NOT EXISTS idx_entity_states_entity ON entity_states(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS state_transitions (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    from_state JSONB,
    to_state JSONB NOT NULL,
    changed_fields JSONB NOT NULL,
    reason TEXT,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_entity ON state_transitions(entity_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS entity_relationships (
    id TEXT PRIMARY KEY,
    from_entity_id TEXT NOT NULL REFERENCES entities(id),
    to_entity_id TEXT NOT NULL REFERENCES entities(id),
    type TEXT NOT NULL,
    attributes JSONB,
    meeting_id TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON entity_relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON entity_relationships(to_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_dedup ON entity_relationships(from_entity_id, to_entity_id, type, active);
`

// VectorSchema creates one pgvector-backed table per collection. Applied
// only after CREATE EXTENSION vector succeeds. The dimension placeholder is
// substituted at startup.
const VectorSchema = `
CREATE TABLE IF NOT EXISTS vectors_memories (
    id TEXT PRIMARY KEY,
    embedding vector(%d) NOT NULL,
    payload JSONB
);

CREATE TABLE IF NOT EXISTS vectors_entity_names (
    id TEXT PRIMARY KEY,
    embedding vector(%d) NOT NULL,
    payload JSONB
);

CREATE INDEX IF NOT EXISTS idx_vectors_memories_meeting
    ON vectors_memories ((payload->>'meeting_id'));
`
