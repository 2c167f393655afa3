package storage

import (
	"context"
	"fmt"

	"github.com/macconnolly/meetgraph/pkg/types"
)

// Stores bundles the relational and vector stores behind the cross-store
// operations the pipeline depends on. Cross-store writes are best-effort:
// a write can succeed in one store and fail in the other, so every id is a
// stable UUID and callers retry idempotently.
type Stores struct {
	DB      Store
	Vectors VectorStore

	// Collection names; zero values select the defaults.
	MemoriesCollection string
	EntitiesCollection string
}

// NewStores creates a Stores with default collection names.
func NewStores(db Store, vectors VectorStore) *Stores {
	return &Stores{
		DB:                 db,
		Vectors:            vectors,
		MemoriesCollection: CollectionMemories,
		EntitiesCollection: CollectionEntityNames,
	}
}

// SaveMemories writes memories to the relational store and their
// embeddings to the memories collection. vectors rows align with memories;
// a nil row skips the vector write for that memory. Partial failure is
// reported as an error after all attempts.
func (s *Stores) SaveMemories(ctx context.Context, memories []*types.Memory, vectors [][]float32) error {
	if len(vectors) != 0 && len(vectors) != len(memories) {
		return fmt.Errorf("%w: %d memories but %d vectors", ErrInvalidInput, len(memories), len(vectors))
	}

	if err := s.DB.SaveMemories(ctx, memories); err != nil {
		return fmt.Errorf("%w: relational memory write: %v", types.ErrPersistenceFailed, err)
	}

	if len(vectors) == 0 {
		return nil
	}

	points := make([]VectorPoint, 0, len(memories))
	for i, m := range memories {
		if vectors[i] == nil {
			continue
		}
		points = append(points, VectorPoint{
			ID:     m.ID,
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"meeting_id":      m.MeetingID,
				"content":         m.Content,
				"speaker":         m.Speaker,
				"timestamp":       m.Timestamp,
				"type":            m.Metadata.Type,
				"importance":      m.Metadata.Importance,
				"entity_mentions": m.EntityMentions,
			},
		})
	}
	if len(points) == 0 {
		return nil
	}

	if err := s.Vectors.Upsert(ctx, s.memCollection(), points); err != nil {
		return fmt.Errorf("%w: memory vector write: %v", types.ErrPersistenceFailed, err)
	}
	return nil
}

// SaveEntityEmbedding upserts the name embedding for an entity.
func (s *Stores) SaveEntityEmbedding(ctx context.Context, entity *types.Entity, vector []float32) error {
	point := VectorPoint{
		ID:     entity.ID,
		Vector: vector,
		Payload: map[string]interface{}{
			"name":            entity.Name,
			"normalized_name": entity.NormalizedName,
			"type":            entity.Type,
		},
	}
	if err := s.Vectors.Upsert(ctx, s.entCollection(), []VectorPoint{point}); err != nil {
		return fmt.Errorf("%w: entity embedding write: %v", types.ErrPersistenceFailed, err)
	}
	return nil
}

// GetEntityEmbedding returns the stored name embedding for an entity id,
// or nil when none exists.
func (s *Stores) GetEntityEmbedding(ctx context.Context, entityID string) ([]float32, error) {
	point, err := s.Vectors.Get(ctx, s.entCollection(), entityID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return point.Vector, nil
}

// SearchEntityEmbeddings returns the top-k entity ids by name similarity.
func (s *Stores) SearchEntityEmbeddings(ctx context.Context, vector []float32, k int) ([]ScoredPoint, error) {
	return s.Vectors.Search(ctx, s.entCollection(), vector, SearchFilters{}, k)
}

// SearchMemories performs semantic memory search and hydrates each hit
// with its memory record, meeting brief, and mentioned entities. Hits
// whose relational record has vanished are skipped rather than failing
// the search.
func (s *Stores) SearchMemories(ctx context.Context, vector []float32, filters SearchFilters, k int) ([]SearchResult, error) {
	hits, err := s.Vectors.Search(ctx, s.memCollection(), vector, filters, k)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	meetingCache := make(map[string]types.MeetingBrief)

	for _, hit := range hits {
		memory := memoryFromPayload(hit)

		brief, ok := meetingCache[memory.MeetingID]
		if !ok {
			if meeting, err := s.DB.GetMeeting(ctx, memory.MeetingID); err == nil {
				brief = types.MeetingBrief{ID: meeting.ID, Title: meeting.Title, Date: meeting.Date}
			}
			meetingCache[memory.MeetingID] = brief
		}

		var relevant []*types.Entity
		if len(memory.EntityMentions) > 0 {
			relevant, _ = s.DB.GetEntitiesBatch(ctx, memory.EntityMentions)
		}

		results = append(results, SearchResult{
			Memory:           memory,
			Meeting:          brief,
			Score:            hit.Score,
			RelevantEntities: relevant,
		})
	}
	return results, nil
}

// memCollection returns the configured memories collection name.
func (s *Stores) memCollection() string {
	if s.MemoriesCollection != "" {
		return s.MemoriesCollection
	}
	return CollectionMemories
}

// entCollection returns the configured entity-name collection name.
func (s *Stores) entCollection() string {
	if s.EntitiesCollection != "" {
		return s.EntitiesCollection
	}
	return CollectionEntityNames
}

// memoryFromPayload reconstructs a Memory from a vector search payload.
// The payload is the source of truth for search hydration so a relational
// read per hit is unnecessary.
func memoryFromPayload(hit ScoredPoint) *types.Memory {
	m := &types.Memory{ID: hit.ID}
	if v, ok := hit.Payload["meeting_id"].(string); ok {
		m.MeetingID = v
	}
	if v, ok := hit.Payload["content"].(string); ok {
		m.Content = v
	}
	if v, ok := hit.Payload["speaker"].(string); ok {
		m.Speaker = v
	}
	if v, ok := hit.Payload["timestamp"].(string); ok {
		m.Timestamp = v
	}
	if v, ok := hit.Payload["type"].(string); ok {
		m.Metadata.Type = v
	}
	if v, ok := hit.Payload["importance"].(string); ok {
		m.Metadata.Importance = v
	}
	m.EntityMentions = payloadStrings(hit.Payload["entity_mentions"])
	return m
}

// payloadStrings coerces a payload value into a string slice. Payloads
// round-trip through JSON in the SQLite backend, so []interface{} is as
// common as []string.
func payloadStrings(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
