package types

// ExtractedEntity is an entity as reported by the extractor, before
// resolution against the corpus. CurrentState carries the state observed in
// this meeting, or nil when the transcript says nothing about state.
type ExtractedEntity struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	CurrentState map[string]interface{} `json:"current_state,omitempty"`
}

// ExtractedRelationship is a relationship between two entities named by
// their extracted (free-text) names.
type ExtractedRelationship struct {
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// MeetingMetadata carries meeting-level fields produced by extraction.
// TranscriptContext preserves a verbatim copy of the original transcript so
// downstream consumers never depend on the extractor's summarization.
type MeetingMetadata struct {
	Summary           string   `json:"summary,omitempty"`
	DetailedSummary   string   `json:"detailed_summary,omitempty"`
	Topics            []string `json:"topics,omitempty"`
	Participants      []string `json:"participants,omitempty"`
	Decisions         []string `json:"decisions,omitempty"`
	ActionItems       []string `json:"action_items,omitempty"`
	MeetingType       string   `json:"meeting_type,omitempty"`
	TranscriptContext string   `json:"transcript_context,omitempty"`
	ExtractionMethod  string   `json:"extraction_method,omitempty"`
	ExtractionError   string   `json:"extraction_error,omitempty"`
}

// ExtractionResult is the typed output of transcript extraction: the input
// to meeting processing.
type ExtractionResult struct {
	MeetingID     string                  `json:"meeting_id"`
	Memories      []*Memory               `json:"memories"`
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
	Metadata      MeetingMetadata         `json:"metadata"`
}

// IsEmpty reports whether the extraction produced nothing usable. An empty
// extraction is a hard failure surfaced to the caller.
func (r *ExtractionResult) IsEmpty() bool {
	return len(r.Memories) == 0 && len(r.Entities) == 0 && len(r.Relationships) == 0
}
