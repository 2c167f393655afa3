package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/macconnolly/meetgraph/internal/storage"
)

// VectorStore implements storage.VectorStore using the pgvector extension.
// Cosine distance queries use the <=> operator; score = 1 - distance.
type VectorStore struct {
	db  *sql.DB
	dim int
}

// NewVectorStore enables the pgvector extension, applies the vector schema
// at the given dimension, and returns a store sharing the connection pool.
func NewVectorStore(db *sql.DB, dim int) (*VectorStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", storage.ErrInvalidInput)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("postgres: pgvector extension not available: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(VectorSchema, dim, dim)); err != nil {
		return nil, fmt.Errorf("postgres: failed to apply vector schema: %w", err)
	}

	return &VectorStore{db: db, dim: dim}, nil
}

// collectionTable maps a collection name to its backing table.
func collectionTable(collection string) (string, error) {
	switch collection {
	case storage.CollectionMemories:
		return "vectors_memories", nil
	case storage.CollectionEntityNames:
		return "vectors_entity_names", nil
	}
	return "", fmt.Errorf("%w: unknown collection %q", storage.ErrInvalidInput, collection)
}

// Upsert inserts or replaces points in a collection.
func (v *VectorStore) Upsert(ctx context.Context, collection string, points []storage.VectorPoint) error {
	table, err := collectionTable(collection)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin vector transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: vector point id is required", storage.ErrInvalidInput)
		}
		if len(p.Vector) != v.dim {
			return fmt.Errorf("%w: vector dimension %d, expected %d", storage.ErrInvalidInput, len(p.Vector), v.dim)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (id, embedding, payload) VALUES ($1, $2, $3)
			ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, payload = excluded.payload
		`, p.ID, pgvector.NewVector(p.Vector), payload); err != nil {
			return fmt.Errorf("postgres: failed to upsert vector %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit vectors: %w", err)
	}
	return nil
}

// Get retrieves a point by id.
func (v *VectorStore) Get(ctx context.Context, collection, id string) (*storage.VectorPoint, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}

	var vec pgvector.Vector
	var payload []byte
	err = v.db.QueryRowContext(ctx, `SELECT embedding, payload FROM `+table+` WHERE id = $1`, id).
		Scan(&vec, &payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get vector: %w", err)
	}

	point := &storage.VectorPoint{ID: id, Vector: vec.Slice()}
	if len(payload) > 0 {
		point.Payload = fromJSONMap(payload)
	}
	return point, nil
}

// Search returns the top-k points by cosine similarity, pushing payload
// filters into SQL so the index can prune.
func (v *VectorStore) Search(ctx context.Context, collection string, vector []float32, filters storage.SearchFilters, k int) ([]storage.ScoredPoint, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	query := `SELECT id, payload, 1 - (embedding <=> $1) AS score FROM ` + table
	args := []interface{}{pgvector.NewVector(vector)}

	var conds []string
	if filters.MeetingID != "" {
		args = append(args, filters.MeetingID)
		conds = append(conds, fmt.Sprintf("payload->>'meeting_id' = $%d", len(args)))
	}
	if len(filters.EntityMentions) > 0 {
		mentions, err := json.Marshal(filters.EntityMentions)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to marshal filter: %w", err)
		}
		// ?| matches when the entity_mentions array shares any element with
		// the given set.
		args = append(args, mentions)
		conds = append(conds, fmt.Sprintf(
			"(SELECT ARRAY(SELECT jsonb_array_elements_text(COALESCE(payload->'entity_mentions', '[]'::jsonb)))) && (SELECT ARRAY(SELECT jsonb_array_elements_text($%d::jsonb)))", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []storage.ScoredPoint
	for rows.Next() {
		var hit storage.ScoredPoint
		var payload []byte
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan search hit: %w", err)
		}
		if len(payload) > 0 {
			hit.Payload = fromJSONMap(payload)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Close is a no-op; the connection pool is owned by the relational store.
func (v *VectorStore) Close() error {
	return nil
}
