package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/macconnolly/meetgraph/internal/storage"
)

// VectorStore implements storage.VectorStore over BLOB-backed SQLite
// tables. Embeddings are little-endian float32; similarity is computed
// in-process, which is fine at the corpus sizes a single database serves.
type VectorStore struct {
	db  *sql.DB
	dim int
}

// NewVectorStore creates a vector store sharing the given connection.
// dim is the expected embedding dimension; mismatched vectors are rejected.
func NewVectorStore(db *sql.DB, dim int) *VectorStore {
	return &VectorStore{db: db, dim: dim}
}

// collectionTable maps a collection name to its backing table. Unknown
// collections are rejected so a typo cannot silently create data holes.
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
		return fmt.Errorf("sqlite: failed to begin vector transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+table+` (id, embedding, payload) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, payload = excluded.payload
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare vector upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: vector point id is required", storage.ErrInvalidInput)
		}
		if v.dim > 0 && len(p.Vector) != v.dim {
			return fmt.Errorf("%w: vector dimension %d, expected %d", storage.ErrInvalidInput, len(p.Vector), v.dim)
		}
		payload, err := marshalPayload(p.Payload)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, encodeVector(p.Vector), payload); err != nil {
			return fmt.Errorf("sqlite: failed to upsert vector %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit vectors: %w", err)
	}
	return nil
}

// Get retrieves a point by id.
func (v *VectorStore) Get(ctx context.Context, collection, id string) (*storage.VectorPoint, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}

	var blob []byte
	var payload sql.NullString
	err = v.db.QueryRowContext(ctx, `SELECT embedding, payload FROM `+table+` WHERE id = ?`, id).
		Scan(&blob, &payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get vector: %w", err)
	}

	point := &storage.VectorPoint{ID: id, Vector: decodeVector(blob)}
	if payload.Valid {
		point.Payload = unmarshalMap(payload.String)
	}
	return point, nil
}

// Search scans the collection, filters by payload, and returns the top-k
// points by cosine similarity.
func (v *VectorStore) Search(ctx context.Context, collection string, vector []float32, filters storage.SearchFilters, k int) ([]storage.ScoredPoint, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := v.db.QueryContext(ctx, `SELECT id, embedding, payload FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var hits []storage.ScoredPoint
	for rows.Next() {
		var id string
		var blob []byte
		var payloadJSON sql.NullString
		if err := rows.Scan(&id, &blob, &payloadJSON); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan vector row: %w", err)
		}

		var payload map[string]interface{}
		if payloadJSON.Valid {
			payload = unmarshalMap(payloadJSON.String)
		}
		if !matchesFilters(payload, filters) {
			continue
		}

		score := cosine(vector, decodeVector(blob))
		hits = append(hits, storage.ScoredPoint{ID: id, Score: score, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close is a no-op; the connection is owned by the relational store.
func (v *VectorStore) Close() error {
	return nil
}

// matchesFilters applies payload equality filters to a point.
func matchesFilters(payload map[string]interface{}, filters storage.SearchFilters) bool {
	if filters.MeetingID != "" {
		v, _ := payload["meeting_id"].(string)
		if v != filters.MeetingID {
			return false
		}
	}
	if len(filters.EntityMentions) > 0 {
		mentions := payloadStringSet(payload["entity_mentions"])
		found := false
		for _, want := range filters.EntityMentions {
			if mentions[want] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// payloadStringSet coerces a payload array into a membership set.
func payloadStringSet(v interface{}) map[string]bool {
	set := make(map[string]bool)
	switch vv := v.(type) {
	case []string:
		for _, s := range vv {
			set[s] = true
		}
	case []interface{}:
		for _, item := range vv {
			if s, ok := item.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}

// encodeVector serializes a float32 slice as little-endian bytes.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes little-endian bytes into a float32 slice.
func decodeVector(buf []byte) []float32 {
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector
}

// cosine computes cosine similarity. Mismatched dimensions or zero
// vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// marshalPayload serializes a payload map, nil-safe.
func marshalPayload(payload map[string]interface{}) (interface{}, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal payload: %w", err)
	}
	return string(data), nil
}
