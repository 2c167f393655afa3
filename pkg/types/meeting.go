package types

import "time"

// Meeting is one ingested transcript together with its extracted metadata.
// Immutable after first write except for MemoryCount and EntityCount, which
// are updated when processing completes.
type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Transcript   string    `json:"transcript"`
	Date         time.Time `json:"date"`
	Participants []string  `json:"participants,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Topics       []string  `json:"topics,omitempty"`
	Decisions    []string  `json:"decisions,omitempty"`
	ActionItems  []string  `json:"action_items,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MemoryCount  int       `json:"memory_count"`
	EntityCount  int       `json:"entity_count"`
}

// MeetingBrief is the subset of meeting fields attached to search results
// and timeline rows.
type MeetingBrief struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}
