package types

import (
	"strings"
	"time"
)

// Entity type constants. Every entity tracked by the system is classified
// into exactly one of these canonical types.
const (
	EntityPerson     = "person"
	EntityProject    = "project"
	EntityFeature    = "feature"
	EntityTask       = "task"
	EntityDecision   = "decision"
	EntityDeadline   = "deadline"
	EntityRisk       = "risk"
	EntityGoal       = "goal"
	EntityMetric     = "metric"
	EntityTeam       = "team"
	EntitySystem     = "system"
	EntityTechnology = "technology"
)

// ValidEntityTypes contains all valid entity type values.
var ValidEntityTypes = []string{
	EntityPerson,
	EntityProject,
	EntityFeature,
	EntityTask,
	EntityDecision,
	EntityDeadline,
	EntityRisk,
	EntityGoal,
	EntityMetric,
	EntityTeam,
	EntitySystem,
	EntityTechnology,
}

var validEntityTypeSet = func() map[string]bool {
	m := make(map[string]bool, len(ValidEntityTypes))
	for _, t := range ValidEntityTypes {
		m[t] = true
	}
	return m
}()

// IsValidEntityType checks if the given type is a valid entity type.
func IsValidEntityType(entityType string) bool {
	return validEntityTypeSet[entityType]
}

// NormalizeName produces the canonical lookup key for an entity name:
// lowercased with leading/trailing whitespace trimmed and internal runs of
// whitespace collapsed to single spaces. Idempotent.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Entity represents a business noun tracked across meetings: a project,
// person, feature, deadline, risk, and so on. Entities are shared and
// long-lived; identity is the (normalized_name, type) pair, with the UUID
// as surrogate key.
type Entity struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	Name           string                 `json:"name"`
	NormalizedName string                 `json:"normalized_name"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	FirstSeen      time.Time              `json:"first_seen"`
	LastUpdated    time.Time              `json:"last_updated"`
}

// Normalize fills NormalizedName from Name. Safe to call repeatedly.
func (e *Entity) Normalize() {
	e.NormalizedName = NormalizeName(e.Name)
}

// Validate checks that the entity has a name and a canonical type.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrInvalidInput
	}
	if !IsValidEntityType(e.Type) {
		return ErrInvalidInput
	}
	return nil
}
