// Package sqlite provides SQLite implementations of the storage
// interfaces. It is the default backend: a single file holds the
// relational tables and both vector collections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// coalescedTime scans a timestamp produced by a SQL expression such as
// COALESCE. Expressions carry no declared column type, so the driver returns
// the stored text instead of a time.Time; parse it with the same formats the
// driver accepts for TIMESTAMP columns.
type coalescedTime struct{ t time.Time }

var coalescedTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func (c *coalescedTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		c.t = x
		return nil
	case []byte:
		return c.parse(string(x))
	case string:
		return c.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (c *coalescedTime) parse(s string) error {
	// time.Time.String output may carry a monotonic clock suffix ("m=+...").
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", s); err == nil {
		c.t = t
		return nil
	}
	trimmed := strings.TrimSuffix(s, "Z")
	for _, f := range coalescedTimeFormats {
		if t, err := time.Parse(f, trimmed); err == nil {
			c.t = t
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema. Use ":memory:" for tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
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

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	if _, err := db.Exec(VectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create vector schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection so the vector store can share it.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMeeting persists a meeting record.
func (s *Store) SaveMeeting(ctx context.Context, meeting *types.Meeting) error {
	if meeting == nil || meeting.ID == "" {
		return fmt.Errorf("%w: meeting id is required", storage.ErrInvalidInput)
	}
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now().UTC()
	}
	if meeting.Date.IsZero() {
		meeting.Date = meeting.CreatedAt
	}

	participants, err := marshalStrings(meeting.Participants)
	if err != nil {
		return err
	}
	topics, err := marshalStrings(meeting.Topics)
	if err != nil {
		return err
	}
	decisions, err := marshalStrings(meeting.Decisions)
	if err != nil {
		return err
	}
	actionItems, err := marshalStrings(meeting.ActionItems)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, title, transcript, date, participants, summary, topics, decisions, action_items, created_at, memory_count, entity_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			memory_count = excluded.memory_count,
			entity_count = excluded.entity_count
	`, meeting.ID, meeting.Title, meeting.Transcript, meeting.Date, participants,
		meeting.Summary, topics, decisions, actionItems, meeting.CreatedAt,
		meeting.MemoryCount, meeting.EntityCount)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save meeting: %w", err)
	}
	return nil
}

// GetMeeting retrieves a meeting by id.
func (s *Store) GetMeeting(ctx context.Context, id string) (*types.Meeting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, transcript, date, participants, summary, topics, decisions, action_items, created_at, memory_count, entity_count
		FROM meetings WHERE id = ?
	`, id)

	var m types.Meeting
	var participants, topics, decisions, actionItems sql.NullString
	err := row.Scan(&m.ID, &m.Title, &m.Transcript, &m.Date, &participants,
		&m.Summary, &topics, &decisions, &actionItems, &m.CreatedAt,
		&m.MemoryCount, &m.EntityCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get meeting: %w", err)
	}

	m.Participants = unmarshalStrings(participants)
	m.Topics = unmarshalStrings(topics)
	m.Decisions = unmarshalStrings(decisions)
	m.ActionItems = unmarshalStrings(actionItems)
	return &m, nil
}

// UpdateMeetingCounts sets memory_count and entity_count on a meeting.
func (s *Store) UpdateMeetingCounts(ctx context.Context, meetingID string, memoryCount, entityCount int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET memory_count = ?, entity_count = ? WHERE id = ?
	`, memoryCount, entityCount, meetingID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update meeting counts: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveMemories persists a batch of memories in one transaction.
func (s *Store) SaveMemories(ctx context.Context, memories []*types.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, meeting_id, content, speaker, ts, memory_type, importance, entity_mentions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET entity_mentions = excluded.entity_mentions
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare memory insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range memories {
		if m.ID == "" || m.Content == "" {
			return fmt.Errorf("%w: memory id and content are required", storage.ErrInvalidInput)
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		mentions, err := marshalStrings(m.EntityMentions)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.MeetingID, m.Content, m.Speaker, m.Timestamp,
			m.Metadata.Type, m.Metadata.Importance, mentions, m.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: failed to insert memory %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit memories: %w", err)
	}
	return nil
}

// SaveEntities upserts entities by (normalized_name, type), merging
// attributes with new keys winning. The returned slice is aligned with the
// input and carries the canonical stored records.
func (s *Store) SaveEntities(ctx context.Context, entities []*types.Entity) ([]*types.Entity, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]*types.Entity, 0, len(entities))

	for _, e := range entities {
		e.Normalize()
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entity %q type %q", storage.ErrInvalidInput, e.Name, e.Type)
		}

		existing, err := getEntityByKeyTx(ctx, tx, e.NormalizedName, e.Type)
		if err != nil && err != storage.ErrNotFound {
			return nil, err
		}

		if err == storage.ErrNotFound {
			if e.ID == "" {
				return nil, fmt.Errorf("%w: entity id is required", storage.ErrInvalidInput)
			}
			if e.FirstSeen.IsZero() {
				e.FirstSeen = now
			}
			e.LastUpdated = now

			attrs, err := marshalMap(e.Attributes)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (id, type, name, normalized_name, attributes, first_seen, last_updated)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, e.ID, e.Type, e.Name, e.NormalizedName, attrs, e.FirstSeen, e.LastUpdated); err != nil {
				return nil, fmt.Errorf("sqlite: failed to insert entity %q: %w", e.Name, err)
			}
			out = append(out, e)
			continue
		}

		// Merge: new keys win, existing keys not mentioned are preserved.
		merged := existing.Attributes
		if merged == nil {
			merged = make(map[string]interface{})
		}
		for k, v := range e.Attributes {
			merged[k] = v
		}
		existing.Attributes = merged
		existing.LastUpdated = now

		attrs, err := marshalMap(merged)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities SET attributes = ?, last_updated = ? WHERE id = ?
		`, attrs, existing.LastUpdated, existing.ID); err != nil {
			return nil, fmt.Errorf("sqlite: failed to update entity %q: %w", existing.Name, err)
		}
		out = append(out, existing)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to commit entities: %w", err)
	}
	return out, nil
}

// SaveEntityStates appends entity states in one transaction. The status
// value is normalized on write.
func (s *Store) SaveEntityStates(ctx context.Context, states []*types.EntityState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range states {
		if st.ID == "" || st.EntityID == "" {
			return fmt.Errorf("%w: state id and entity id are required", storage.ErrInvalidInput)
		}
		if st.Timestamp.IsZero() {
			st.Timestamp = time.Now().UTC()
		}
		types.NormalizeState(st.State)

		stateJSON, err := marshalMap(st.State)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_states (id, entity_id, state, meeting_id, timestamp, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
		`, st.ID, st.EntityID, stateJSON, st.MeetingID, st.Timestamp, st.Confidence); err != nil {
			return fmt.Errorf("sqlite: failed to insert state for %s: %w", st.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit states: %w", err)
	}
	return nil
}

// SaveTransitions appends state transitions in one transaction.
func (s *Store) SaveTransitions(ctx context.Context, transitions []*types.StateTransition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, tr := range transitions {
		if tr.ID == "" || tr.EntityID == "" {
			return fmt.Errorf("%w: transition id and entity id are required", storage.ErrInvalidInput)
		}
		if tr.Timestamp.IsZero() {
			tr.Timestamp = time.Now().UTC()
		}
		types.NormalizeState(tr.FromState)
		types.NormalizeState(tr.ToState)

		var fromJSON interface{}
		if tr.FromState != nil {
			j, err := marshalMap(tr.FromState)
			if err != nil {
				return err
			}
			fromJSON = j
		}
		toJSON, err := marshalMap(tr.ToState)
		if err != nil {
			return err
		}
		fields, err := marshalStrings(tr.ChangedFields)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state_transitions (id, entity_id, from_state, to_state, changed_fields, reason, meeting_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, tr.ID, tr.EntityID, fromJSON, toJSON, fields, tr.Reason, tr.MeetingID, tr.Timestamp); err != nil {
			return fmt.Errorf("sqlite: failed to insert transition for %s: %w", tr.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transitions: %w", err)
	}
	return nil
}

// SaveRelationships persists relationships, skipping any that duplicate an
// existing active relationship with the same (from, to, type). Dedup is
// global-active scoped, not meeting scoped.
func (s *Store) SaveRelationships(ctx context.Context, rels []*types.EntityRelationship) (int, error) {
	if len(rels) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	saved := 0
	for _, r := range rels {
		if r.ID == "" || r.FromEntityID == "" || r.ToEntityID == "" {
			return saved, fmt.Errorf("%w: relationship endpoints are required", storage.ErrInvalidInput)
		}
		r.Type = types.NormalizeRelationshipType(r.Type)
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now().UTC()
		}

		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entity_relationships
			WHERE from_entity_id = ? AND to_entity_id = ? AND type = ? AND active = 1
		`, r.FromEntityID, r.ToEntityID, r.Type).Scan(&count)
		if err != nil {
			return saved, fmt.Errorf("sqlite: relationship dedup check: %w", err)
		}
		if count > 0 && r.Active {
			continue
		}

		attrs, err := marshalMap(r.Attributes)
		if err != nil {
			return saved, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_relationships (id, from_entity_id, to_entity_id, type, attributes, meeting_id, timestamp, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.FromEntityID, r.ToEntityID, r.Type, attrs, r.MeetingID, r.Timestamp, boolToInt(r.Active)); err != nil {
			return saved, fmt.Errorf("sqlite: failed to insert relationship: %w", err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, fmt.Errorf("sqlite: failed to commit relationships: %w", err)
	}
	return saved, nil
}

// GetEntityByName performs an exact lookup on normalized_name, optionally
// narrowed by type.
func (s *Store) GetEntityByName(ctx context.Context, name, entityType string) (*types.Entity, error) {
	normalized := types.NormalizeName(name)

	query := `
		SELECT id, type, name, normalized_name, attributes, first_seen, last_updated
		FROM entities WHERE normalized_name = ?
	`
	args := []interface{}{normalized}
	if entityType != "" {
		query += " AND type = ?"
		args = append(args, entityType)
	}
	query += " LIMIT 1"

	return scanEntityRow(s.db.QueryRowContext(ctx, query, args...))
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	return scanEntityRow(s.db.QueryRowContext(ctx, `
		SELECT id, type, name, normalized_name, attributes, first_seen, last_updated
		FROM entities WHERE id = ?
	`, id))
}

// GetEntitiesBatch retrieves entities by id. Unknown ids are skipped.
func (s *Store) GetEntitiesBatch(ctx context.Context, ids []string) ([]*types.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, normalized_name, attributes, first_seen, last_updated
		FROM entities WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to batch-get entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// GetAllEntities lists entities, optionally filtered by type.
func (s *Store) GetAllEntities(ctx context.Context, entityType string, limit, offset int) ([]*types.Entity, error) {
	query := `
		SELECT id, type, name, normalized_name, attributes, first_seen, last_updated
		FROM entities
	`
	var args []interface{}
	if entityType != "" {
		query += " WHERE type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY name"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// GetEntityCurrentState returns the latest state by timestamp, or nil when
// the entity has no recorded state.
func (s *Store) GetEntityCurrentState(ctx context.Context, entityID string) (*types.EntityState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, state, meeting_id, timestamp, confidence
		FROM entity_states WHERE entity_id = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT 1
	`, entityID)

	st, err := scanStateRow(row)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	return st, err
}

// GetEntityCurrentStates batch-fetches the latest state per entity.
func (s *Store) GetEntityCurrentStates(ctx context.Context, entityIDs []string) (map[string]*types.EntityState, error) {
	out := make(map[string]*types.EntityState, len(entityIDs))
	for _, id := range entityIDs {
		st, err := s.GetEntityCurrentState(ctx, id)
		if err != nil {
			return nil, err
		}
		if st != nil {
			out[id] = st
		}
	}
	return out, nil
}

// GetEntityTimeline returns transitions joined with meeting title/date,
// newest first.
func (s *Store) GetEntityTimeline(ctx context.Context, entityID string) ([]storage.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.entity_id, t.from_state, t.to_state, t.changed_fields, t.reason, t.meeting_id, t.timestamp,
		       COALESCE(m.title, ''), COALESCE(m.date, t.timestamp)
		FROM state_transitions t
		LEFT JOIN meetings m ON m.id = t.meeting_id
		WHERE t.entity_id = ?
		ORDER BY t.timestamp DESC, t.rowid DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load timeline: %w", err)
	}
	defer rows.Close()

	var entries []storage.TimelineEntry
	for rows.Next() {
		var tr types.StateTransition
		var fromJSON, reason sql.NullString
		var toJSON, fieldsJSON string
		var entry storage.TimelineEntry

		var meetingDate coalescedTime
		if err := rows.Scan(&tr.ID, &tr.EntityID, &fromJSON, &toJSON, &fieldsJSON, &reason,
			&tr.MeetingID, &tr.Timestamp, &entry.MeetingTitle, &meetingDate); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan timeline row: %w", err)
		}
		entry.MeetingDate = meetingDate.t

		if fromJSON.Valid {
			tr.FromState = unmarshalMap(fromJSON.String)
		}
		tr.ToState = unmarshalMap(toJSON)
		tr.ChangedFields = unmarshalStrings(sql.NullString{String: fieldsJSON, Valid: true})
		tr.Reason = reason.String

		entry.Transition = &tr
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEntityRelationships returns relationships touching the entity in
// either direction, with endpoint names resolved.
func (s *Store) GetEntityRelationships(ctx context.Context, entityID string, activeOnly bool) ([]*types.EntityRelationship, error) {
	query := `
		SELECT r.id, r.from_entity_id, r.to_entity_id, r.type, r.attributes, r.meeting_id, r.timestamp, r.active,
		       COALESCE(ef.name, ''), COALESCE(et.name, '')
		FROM entity_relationships r
		LEFT JOIN entities ef ON ef.id = r.from_entity_id
		LEFT JOIN entities et ON et.id = r.to_entity_id
		WHERE (r.from_entity_id = ? OR r.to_entity_id = ?)
	`
	if activeOnly {
		query += " AND r.active = 1"
	}
	query += " ORDER BY r.timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load relationships: %w", err)
	}
	defer rows.Close()

	var rels []*types.EntityRelationship
	for rows.Next() {
		var r types.EntityRelationship
		var attrs sql.NullString
		var active int
		if err := rows.Scan(&r.ID, &r.FromEntityID, &r.ToEntityID, &r.Type, &attrs,
			&r.MeetingID, &r.Timestamp, &active, &r.FromEntityName, &r.ToEntityName); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan relationship: %w", err)
		}
		if attrs.Valid {
			r.Attributes = unmarshalMap(attrs.String)
		}
		r.Active = active == 1
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}

// Stats returns aggregate counts for the analytics query intent.
func (s *Store) Stats(ctx context.Context) (*storage.GraphStats, error) {
	stats := &storage.GraphStats{EntitiesByType: make(map[string]int)}

	counts := map[string]*int{
		"SELECT COUNT(*) FROM meetings":                                  &stats.Meetings,
		"SELECT COUNT(*) FROM memories":                                  &stats.Memories,
		"SELECT COUNT(*) FROM entities":                                  &stats.Entities,
		"SELECT COUNT(*) FROM state_transitions":                         &stats.StateTransitions,
		"SELECT COUNT(*) FROM entity_relationships WHERE active = 1":     &stats.ActiveRelationships,
	}
	for query, dest := range counts {
		if err := s.db.QueryRowContext(ctx, query).Scan(dest); err != nil {
			return nil, fmt.Errorf("sqlite: stats query failed: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM entities GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats by type failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, err
		}
		stats.EntitiesByType[entityType] = count
	}
	return stats, rows.Err()
}

// getEntityByKeyTx looks up an entity by its natural key within a transaction.
func getEntityByKeyTx(ctx context.Context, tx *sql.Tx, normalizedName, entityType string) (*types.Entity, error) {
	return scanEntityRow(tx.QueryRowContext(ctx, `
		SELECT id, type, name, normalized_name, attributes, first_seen, last_updated
		FROM entities WHERE normalized_name = ? AND type = ?
	`, normalizedName, entityType))
}

// rowScanner abstracts *sql.Row for the shared entity scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntityRow scans a single entity row, mapping sql.ErrNoRows to
// storage.ErrNotFound.
func scanEntityRow(row rowScanner) (*types.Entity, error) {
	var e types.Entity
	var attrs sql.NullString
	err := row.Scan(&e.ID, &e.Type, &e.Name, &e.NormalizedName, &attrs, &e.FirstSeen, &e.LastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
	}
	if attrs.Valid {
		e.Attributes = unmarshalMap(attrs.String)
	}
	return &e, nil
}

// scanEntities scans all rows of an entity query.
func scanEntities(rows *sql.Rows) ([]*types.Entity, error) {
	var entities []*types.Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// scanStateRow scans a single entity state row.
func scanStateRow(row rowScanner) (*types.EntityState, error) {
	var st types.EntityState
	var stateJSON string
	err := row.Scan(&st.ID, &st.EntityID, &stateJSON, &st.MeetingID, &st.Timestamp, &st.Confidence)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to scan state: %w", err)
	}
	st.State = unmarshalMap(stateJSON)
	return &st, nil
}

// marshalStrings serializes a string slice to JSON, nil-safe.
func marshalStrings(values []string) (interface{}, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings deserializes a JSON string array, tolerating NULL and
// malformed values by returning nil.
func unmarshalStrings(value sql.NullString) []string {
	if !value.Valid || value.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// marshalMap serializes a map to JSON, nil-safe.
func marshalMap(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal map: %w", err)
	}
	return string(data), nil
}

// unmarshalMap deserializes a JSON object, tolerating malformed values.
func unmarshalMap(value string) map[string]interface{} {
	if value == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
