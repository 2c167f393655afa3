package storage

import (
	"errors"
	"time"

	"github.com/macconnolly/meetgraph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Collection names used by the core. Configurable via
// config.StorageConfig but these are the defaults everywhere.
const (
	CollectionMemories    = "memories"
	CollectionEntityNames = "entity_names"
)

// VectorPoint is one entry in a vector collection: a stable id, the
// embedding, and a free-form payload used for filtering and hydration.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit with its cosine similarity score.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// SearchFilters restricts vector search by payload equality. Zero values
// mean unfiltered. EntityMentions matches points whose entity_mentions
// payload contains at least one of the given ids.
type SearchFilters struct {
	MeetingID      string
	EntityMentions []string
}

// TimelineEntry is one row of an entity timeline: a transition joined with
// the title and date of the meeting that produced it.
type TimelineEntry struct {
	Transition   *types.StateTransition
	MeetingTitle string
	MeetingDate  time.Time
}

// SearchResult is a semantic memory search hit hydrated from the
// relational store.
type SearchResult struct {
	Memory           *types.Memory
	Meeting          types.MeetingBrief
	Score            float64
	RelevantEntities []*types.Entity
}

// GraphStats aggregates corpus-level counts for analytics queries.
type GraphStats struct {
	Meetings            int
	Memories            int
	Entities            int
	EntitiesByType      map[string]int
	StateTransitions    int
	ActiveRelationships int
}
