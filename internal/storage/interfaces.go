// Package storage provides composable storage interfaces for the meetgraph
// system: a relational store for meetings, memories, entities, states,
// transitions, and relationships, and a vector store with two named
// collections (memory embeddings and entity-name embeddings).
//
// The interfaces are small and focused so backends (SQLite, PostgreSQL)
// can be implemented independently and composed as needed.
package storage

import (
	"context"

	"github.com/macconnolly/meetgraph/pkg/types"
)

// Store is the relational storage contract. All write operations are
// transactional within a single call and batch-capable where the argument
// is a slice. Ids are stable UUIDs so retries are idempotent.
type Store interface {
	// SaveMeeting persists a meeting record. Meetings are immutable after
	// first write except for the memory/entity counts.
	SaveMeeting(ctx context.Context, meeting *types.Meeting) error

	// GetMeeting retrieves a meeting by id. Returns ErrNotFound if missing.
	GetMeeting(ctx context.Context, id string) (*types.Meeting, error)

	// UpdateMeetingCounts sets memory_count and entity_count on a meeting.
	UpdateMeetingCounts(ctx context.Context, meetingID string, memoryCount, entityCount int) error

	// SaveMemories persists a batch of memories in one transaction.
	SaveMemories(ctx context.Context, memories []*types.Memory) error

	// SaveEntities upserts entities by (normalized_name, type). Attributes
	// are merged with new keys winning; last_updated is set to now. The
	// returned slice is aligned with the input and carries the canonical
	// stored records (existing ids are preserved on conflict).
	SaveEntities(ctx context.Context, entities []*types.Entity) ([]*types.Entity, error)

	// SaveEntityStates appends entity states in one transaction.
	SaveEntityStates(ctx context.Context, states []*types.EntityState) error

	// SaveTransitions appends state transitions in one transaction.
	SaveTransitions(ctx context.Context, transitions []*types.StateTransition) error

	// SaveRelationships persists relationships, deduplicating against
	// existing active relationships with identical (from, to, type).
	// Returns the number of relationships actually inserted.
	SaveRelationships(ctx context.Context, rels []*types.EntityRelationship) (int, error)

	// GetEntityByName performs an exact lookup on normalized_name.
	// entityType narrows the lookup when non-empty. Returns ErrNotFound
	// when no entity matches.
	GetEntityByName(ctx context.Context, name, entityType string) (*types.Entity, error)

	// GetEntity retrieves an entity by id. Returns ErrNotFound if missing.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// GetEntitiesBatch retrieves entities by id, skipping unknown ids.
	GetEntitiesBatch(ctx context.Context, ids []string) ([]*types.Entity, error)

	// GetAllEntities lists entities, optionally filtered by type, with
	// limit/offset pagination. limit <= 0 means no limit.
	GetAllEntities(ctx context.Context, entityType string, limit, offset int) ([]*types.Entity, error)

	// GetEntityCurrentState returns the latest state by timestamp for an
	// entity, or nil when the entity has no recorded state.
	GetEntityCurrentState(ctx context.Context, entityID string) (*types.EntityState, error)

	// GetEntityCurrentStates batch-fetches the latest state per entity.
	// Entities without state are absent from the returned map.
	GetEntityCurrentStates(ctx context.Context, entityIDs []string) (map[string]*types.EntityState, error)

	// GetEntityTimeline returns the entity's transitions joined with
	// meeting title and date, newest first.
	GetEntityTimeline(ctx context.Context, entityID string) ([]TimelineEntry, error)

	// GetEntityRelationships returns relationships touching the entity in
	// either direction, with endpoint names resolved. activeOnly restricts
	// to active relationships.
	GetEntityRelationships(ctx context.Context, entityID string, activeOnly bool) ([]*types.EntityRelationship, error)

	// Stats returns aggregate counts for the analytics query intent.
	Stats(ctx context.Context) (*GraphStats, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorStore is the vector storage contract: named collections of
// fixed-dimension points with cosine scoring, upsert by id, and top-k
// search with optional equality filters on payload fields.
type VectorStore interface {
	// Upsert inserts or replaces points in a collection.
	Upsert(ctx context.Context, collection string, points []VectorPoint) error

	// Get retrieves a point by id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*VectorPoint, error)

	// Search returns the top-k points by cosine similarity to vector,
	// restricted by filters. Scores are in [-1, 1].
	Search(ctx context.Context, collection string, vector []float32, filters SearchFilters, k int) ([]ScoredPoint, error)

	// Close releases any resources held by the store.
	Close() error
}
