package types

import (
	"strings"
	"time"
)

// Canonical status vocabulary for EntityState.status.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusCancelled  = "cancelled"
)

// ValidStatuses contains all canonical status values.
var ValidStatuses = []string{
	StatusPlanned,
	StatusInProgress,
	StatusCompleted,
	StatusBlocked,
	StatusCancelled,
}

// statusAliases maps separator-normalized input variants to canonical
// status values. Keys use underscores; NormalizeStatus folds "-" and
// spaces to "_" before lookup.
var statusAliases = map[string]string{
	"planned":     StatusPlanned,
	"planning":    StatusPlanned,
	"not_started": StatusPlanned,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"active":      StatusInProgress,
	"ongoing":     StatusInProgress,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"done":        StatusCompleted,
	"finished":    StatusCompleted,
	"closed":      StatusCompleted,
	"blocked":     StatusBlocked,
	"on_hold":     StatusBlocked,
	"paused":      StatusBlocked,
	"stuck":       StatusBlocked,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"abandoned":   StatusCancelled,
	"stopped":     StatusCancelled,
}

// NormalizeStatus maps a free-text status value to the canonical
// vocabulary. Matching is case-insensitive and treats "_", "-", and
// spaces as interchangeable separators. Unknown values are returned
// lowercased and separator-normalized so the operation stays idempotent.
// Phrase variants like "in planning phase" also collapse to their
// canonical value.
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_'
	}), "_")

	if canonical, ok := statusAliases[s]; ok {
		return canonical
	}

	// Phrase forms: "in planning phase", "currently blocked", etc. map to
	// the canonical value of any alias word they contain. Longest alias
	// keys are single words after separator folding, so scan word-wise.
	for _, word := range strings.Split(s, "_") {
		if canonical, ok := statusAliases[word]; ok {
			return canonical
		}
	}

	return s
}

// IsValidStatus reports whether status is one of the canonical values.
func IsValidStatus(status string) bool {
	for _, v := range ValidStatuses {
		if status == v {
			return true
		}
	}
	return false
}

// EntityState is one observation of an entity's state at a point in time.
// States are append-only; the "current" state is the latest by timestamp.
type EntityState struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entity_id"`
	State      map[string]interface{} `json:"state"`
	MeetingID  string                 `json:"meeting_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Confidence float64                `json:"confidence"`
}

// StateTransition records a semantic change between two consecutive states
// of an entity. FromState is nil for the initial observation.
type StateTransition struct {
	ID            string                 `json:"id"`
	EntityID      string                 `json:"entity_id"`
	FromState     map[string]interface{} `json:"from_state,omitempty"`
	ToState       map[string]interface{} `json:"to_state"`
	ChangedFields []string               `json:"changed_fields"`
	Reason        string                 `json:"reason,omitempty"`
	MeetingID     string                 `json:"meeting_id"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NormalizeState applies status normalization to a state map in place and
// returns it. Only the "status" key carries a closed vocabulary; other
// values are trimmed when they are strings. Idempotent.
func NormalizeState(state map[string]interface{}) map[string]interface{} {
	if state == nil {
		return nil
	}
	for k, v := range state {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == "status" {
			state[k] = NormalizeStatus(s)
		} else {
			state[k] = strings.TrimSpace(s)
		}
	}
	return state
}
