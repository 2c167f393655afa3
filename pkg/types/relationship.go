package types

import (
	"strings"
	"time"
)

// Canonical relationship vocabulary.
const (
	RelOwns             = "owns"
	RelWorksOn          = "works_on"
	RelReportsTo        = "reports_to"
	RelDependsOn        = "depends_on"
	RelBlocks           = "blocks"
	RelIncludes         = "includes"
	RelAssignedTo       = "assigned_to"
	RelResponsibleFor   = "responsible_for"
	RelCollaboratesWith = "collaborates_with"
	RelMentionedIn      = "mentioned_in"
	RelRelatesTo        = "relates_to"
)

// ValidRelationshipTypes contains all canonical relationship type values.
var ValidRelationshipTypes = []string{
	RelOwns,
	RelWorksOn,
	RelReportsTo,
	RelDependsOn,
	RelBlocks,
	RelIncludes,
	RelAssignedTo,
	RelResponsibleFor,
	RelCollaboratesWith,
	RelMentionedIn,
	RelRelatesTo,
}

var validRelationshipTypeSet = func() map[string]bool {
	m := make(map[string]bool, len(ValidRelationshipTypes))
	for _, t := range ValidRelationshipTypes {
		m[t] = true
	}
	return m
}()

// relationshipAliases maps separator-normalized variants to canonical types.
var relationshipAliases = map[string]string{
	"owner_of":          RelOwns,
	"working_on":        RelWorksOn,
	"reports":           RelReportsTo,
	"depends":           RelDependsOn,
	"blocked_by":        RelBlocks,
	"contains":          RelIncludes,
	"assigned":          RelAssignedTo,
	"responsible":       RelResponsibleFor,
	"collaborates":      RelCollaboratesWith,
	"mentioned":         RelMentionedIn,
	"related_to":        RelRelatesTo,
	"relates":           RelRelatesTo,
}

// IsValidRelationshipType checks if the given type is canonical.
func IsValidRelationshipType(relType string) bool {
	return validRelationshipTypeSet[relType]
}

// NormalizeRelationshipType maps a free-text relationship type to the
// canonical vocabulary. Unknown types default to relates_to. Idempotent.
func NormalizeRelationshipType(relType string) string {
	s := strings.ToLower(strings.TrimSpace(relType))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_'
	}), "_")

	if validRelationshipTypeSet[s] {
		return s
	}
	if canonical, ok := relationshipAliases[s]; ok {
		return canonical
	}
	return RelRelatesTo
}

// EntityRelationship is a directed edge between two entities. The graph may
// contain cycles; adjacency lives in the relational layer, never inside
// Entity records. Deduplicated per (from, to, type, active).
type EntityRelationship struct {
	ID           string                 `json:"id"`
	FromEntityID string                 `json:"from_entity_id"`
	ToEntityID   string                 `json:"to_entity_id"`
	Type         string                 `json:"type"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	MeetingID    string                 `json:"meeting_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Active       bool                   `json:"active"`

	// Resolved endpoint names, populated by reads that join entities.
	FromEntityName string `json:"from_entity_name,omitempty"`
	ToEntityName   string `json:"to_entity_name,omitempty"`
}
