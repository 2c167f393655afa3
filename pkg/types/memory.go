package types

import "time"

// Memory type constants for MemoryMetadata.Type.
const (
	MemoryDecision   = "decision"
	MemoryAction     = "action"
	MemoryInsight    = "insight"
	MemoryDiscussion = "discussion"
	MemoryRisk       = "risk"
	MemoryDeadline   = "deadline"
)

// ValidMemoryTypes contains all valid memory type values.
var ValidMemoryTypes = []string{
	MemoryDecision,
	MemoryAction,
	MemoryInsight,
	MemoryDiscussion,
	MemoryRisk,
	MemoryDeadline,
}

// IsValidMemoryType checks if the given type is a valid memory type.
func IsValidMemoryType(memoryType string) bool {
	for _, t := range ValidMemoryTypes {
		if memoryType == t {
			return true
		}
	}
	return false
}

// Importance levels for MemoryMetadata.Importance.
const (
	ImportanceHigh   = "high"
	ImportanceMedium = "med"
	ImportanceLow    = "low"
)

// MemoryMetadata classifies a memory by kind and importance.
type MemoryMetadata struct {
	Type       string `json:"type,omitempty"`
	Importance string `json:"importance,omitempty"`
}

// Memory is a single semantically-indexable utterance from a meeting.
// Memories are created during ingestion and never mutated afterwards.
// EntityMentions holds free-text mentions at extraction time and is
// rewritten to resolved entity ids during meeting processing.
type Memory struct {
	ID             string         `json:"id"`
	MeetingID      string         `json:"meeting_id"`
	Content        string         `json:"content"`
	Speaker        string         `json:"speaker,omitempty"`
	Timestamp      string         `json:"timestamp,omitempty"`
	Metadata       MemoryMetadata `json:"metadata"`
	EntityMentions []string       `json:"entity_mentions,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
