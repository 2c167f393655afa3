// Package query answers natural-language questions against the knowledge
// graph: intent classification, entity and time-window extraction, context
// assembly from the stores, and LLM answer synthesis with a templated
// fallback. The engine never mutates storage.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

const (
	memorySearchK      = 20
	maxQueryEntities   = 5
	fallbackConfidence = 0.3
)

// jsonGenerator is the slice of the LLM processor the engine needs.
type jsonGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, out interface{}) error
}

// Result is the engine's answer to one query.
type Result struct {
	Query            string      `json:"query"`
	Intent           Intent      `json:"intent"`
	IntentConfidence float64     `json:"intent_confidence"`
	Answer           string      `json:"answer"`
	Confidence       float64     `json:"confidence"`
	Entities         []string    `json:"entities,omitempty"`
	TimeWindow       *TimeWindow `json:"time_window,omitempty"`
	FollowUps        []string    `json:"follow_ups,omitempty"`
}

// entityContext bundles everything the engine loads for one mentioned
// entity.
type entityContext struct {
	entity        *types.Entity
	currentState  *types.EntityState
	timeline      []storage.TimelineEntry
	relationships []*types.EntityRelationship
}

// Engine answers queries against the store.
type Engine struct {
	store         storage.Store
	stores        *storage.Stores
	encoder       *embedding.Encoder
	generator     jsonGenerator
	timelineLimit int
}

// New creates a query engine.
func New(store storage.Store, stores *storage.Stores, encoder *embedding.Encoder, generator jsonGenerator, cfg config.QueryConfig) *Engine {
	limit := cfg.TimelineDisplayLimit
	if limit <= 0 {
		limit = 10
	}
	return &Engine{
		store:         store,
		stores:        stores,
		encoder:       encoder,
		generator:     generator,
		timelineLimit: limit,
	}
}

// Answer classifies the query, assembles context, and synthesizes an
// answer. Every return carries an answer, a confidence, and the intent;
// LLM failure degrades to a templated answer instead of erroring.
func (e *Engine) Answer(ctx context.Context, q string) (*Result, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrInvalidInput)
	}

	intent, intentConf := ClassifyIntent(q)
	window := ParseTimeWindow(q, time.Now())

	contexts, err := e.matchEntities(ctx, q, window)
	if err != nil {
		return nil, err
	}

	hits, err := e.stores.SearchMemories(ctx, e.encoder.Encode(q), storage.SearchFilters{}, memorySearchK)
	if err != nil {
		log.Printf("query: memory search failed: %v", err)
	}

	payload, err := e.buildPayload(ctx, intent, contexts, hits)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Query:            q,
		Intent:           intent,
		IntentConfidence: intentConf,
		TimeWindow:       window,
		FollowUps:        e.followUps(intent, contexts),
	}
	for _, ec := range contexts {
		result.Entities = append(result.Entities, ec.entity.Name)
	}

	answer, confidence := e.synthesize(ctx, q, intent, payload)
	if answer == "" {
		answer = e.fallbackAnswer(intent, contexts, hits, payload)
		confidence = fallbackConfidence
	}
	result.Answer = answer
	result.Confidence = confidence
	return result, nil
}

// matchEntities scans the catalog for entities whose normalized name
// occurs in the query, longest names first so "project phoenix" beats
// "phoenix".
func (e *Engine) matchEntities(ctx context.Context, q string, window *TimeWindow) ([]*entityContext, error) {
	entities, err := e.store.GetAllEntities(ctx, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("entity scan: %w", err)
	}

	lower := strings.ToLower(q)
	var matched []*types.Entity
	for _, ent := range entities {
		if ent.NormalizedName != "" && strings.Contains(lower, ent.NormalizedName) {
			matched = append(matched, ent)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return len(matched[i].NormalizedName) > len(matched[j].NormalizedName)
	})
	if len(matched) > maxQueryEntities {
		matched = matched[:maxQueryEntities]
	}

	contexts := make([]*entityContext, 0, len(matched))
	for _, ent := range matched {
		ec := &entityContext{entity: ent}

		if state, err := e.store.GetEntityCurrentState(ctx, ent.ID); err == nil {
			ec.currentState = state
		}
		timeline, err := e.store.GetEntityTimeline(ctx, ent.ID)
		if err != nil {
			return nil, fmt.Errorf("timeline for %s: %w", ent.Name, err)
		}
		if window != nil {
			filtered := timeline[:0]
			for _, entry := range timeline {
				if window.Contains(entry.Transition.Timestamp) {
					filtered = append(filtered, entry)
				}
			}
			timeline = filtered
		}
		ec.timeline = timeline

		rels, err := e.store.GetEntityRelationships(ctx, ent.ID, true)
		if err != nil {
			return nil, fmt.Errorf("relationships for %s: %w", ent.Name, err)
		}
		ec.relationships = rels

		contexts = append(contexts, ec)
	}
	return contexts, nil
}

// buildPayload assembles the intent-specific context payload handed to the
// LLM.
func (e *Engine) buildPayload(ctx context.Context, intent Intent, contexts []*entityContext, hits []storage.SearchResult) (map[string]interface{}, error) {
	payload := map[string]interface{}{}

	switch intent {
	case IntentTimeline:
		var rows []map[string]interface{}
		for _, ec := range contexts {
			timeline := ec.timeline
			if len(timeline) > e.timelineLimit {
				timeline = timeline[:e.timelineLimit]
			}
			for _, entry := range timeline {
				rows = append(rows, map[string]interface{}{
					"entity":         ec.entity.Name,
					"date":           entry.Transition.Timestamp.Format("2006-01-02"),
					"meeting":        entry.MeetingTitle,
					"changed_fields": entry.Transition.ChangedFields,
					"reason":         entry.Transition.Reason,
					"to_state":       entry.Transition.ToState,
				})
			}
		}
		payload["timeline"] = rows

	case IntentBlocker:
		rows, err := e.blockerRows(ctx, contexts)
		if err != nil {
			return nil, err
		}
		payload["blocked"] = rows

	case IntentStatus:
		var rows []map[string]interface{}
		for _, ec := range contexts {
			row := map[string]interface{}{"entity": ec.entity.Name, "type": ec.entity.Type}
			if ec.currentState != nil {
				row["state"] = ec.currentState.State
				row["as_of"] = ec.currentState.Timestamp.Format("2006-01-02")
			}
			rows = append(rows, row)
		}
		payload["status"] = rows

	case IntentOwnership:
		var rows []map[string]interface{}
		for _, ec := range contexts {
			for _, rel := range ec.relationships {
				switch rel.Type {
				case types.RelOwns, types.RelResponsibleFor, types.RelAssignedTo:
					rows = append(rows, relationshipRow(rel))
				}
			}
		}
		payload["ownership"] = rows

	case IntentRelationship:
		var rows []map[string]interface{}
		for _, ec := range contexts {
			for _, rel := range ec.relationships {
				rows = append(rows, relationshipRow(rel))
			}
		}
		payload["relationships"] = rows

	case IntentAnalytics:
		stats, err := e.store.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		payload["stats"] = map[string]interface{}{
			"meetings":             stats.Meetings,
			"memories":             stats.Memories,
			"entities":             stats.Entities,
			"entities_by_type":     stats.EntitiesByType,
			"state_transitions":    stats.StateTransitions,
			"active_relationships": stats.ActiveRelationships,
		}
	}

	var memories []map[string]interface{}
	for _, hit := range hits {
		memories = append(memories, map[string]interface{}{
			"content": hit.Memory.Content,
			"speaker": hit.Memory.Speaker,
			"meeting": hit.Meeting.Title,
			"score":   hit.Score,
		})
	}
	payload["memories"] = memories

	return payload, nil
}

// blockerRows finds blocked entities. When the query names entities, only
// those are inspected; otherwise the whole graph is scanned.
func (e *Engine) blockerRows(ctx context.Context, contexts []*entityContext) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}

	appendIfBlocked := func(entity *types.Entity, state *types.EntityState) {
		if state == nil {
			return
		}
		status, _ := state.State["status"].(string)
		blockers := state.State["blockers"]
		if status != types.StatusBlocked && !hasBlockers(blockers) {
			return
		}
		rows = append(rows, map[string]interface{}{
			"entity":   entity.Name,
			"type":     entity.Type,
			"status":   status,
			"blockers": blockers,
			"since":    state.Timestamp.Format("2006-01-02"),
		})
	}

	if len(contexts) > 0 {
		for _, ec := range contexts {
			appendIfBlocked(ec.entity, ec.currentState)
		}
		return rows, nil
	}

	entities, err := e.store.GetAllEntities(ctx, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("entity scan: %w", err)
	}
	ids := make([]string, len(entities))
	for i, ent := range entities {
		ids[i] = ent.ID
	}
	states, err := e.store.GetEntityCurrentStates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("state scan: %w", err)
	}
	for _, ent := range entities {
		appendIfBlocked(ent, states[ent.ID])
	}
	return rows, nil
}

// synthesisInstructions holds the per-intent answer style.
var synthesisInstructions = map[Intent]string{
	IntentTimeline:     "Narrate the entity's evolution chronologically, citing meeting dates.",
	IntentBlocker:      "List what is blocked, by what, and since when. Call out patterns across entities.",
	IntentStatus:       "Give a concise current status update per entity.",
	IntentOwnership:    "State who owns or is responsible for what.",
	IntentAnalytics:    "Summarize the graph statistics in plain language.",
	IntentRelationship: "Describe how the entities are connected.",
	IntentSearch:       "Answer from the retrieved meeting memories, citing speakers where known.",
}

// synthesize asks the LLM for an answer. Returns empty answer on any
// failure so the caller can fall back.
func (e *Engine) synthesize(ctx context.Context, q string, intent Intent, payload map[string]interface{}) (string, float64) {
	if e.generator == nil {
		return "", 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", 0
	}

	prompt := fmt.Sprintf(`You answer business-intelligence questions from meeting-derived context.
%s
Use only the context below. If the context cannot answer the question, say so.

Context:
%s

Question: %s

Respond with JSON only: {"answer": "...", "confidence": 0.0}`,
		synthesisInstructions[intent], data, q)

	var resp struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
	}
	if err := e.generator.GenerateJSON(ctx, prompt, &resp); err != nil {
		log.Printf("query: synthesis failed, using fallback: %v", err)
		return "", 0
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	return strings.TrimSpace(resp.Answer), resp.Confidence
}

// fallbackAnswer builds a deterministic answer from the payload when the
// LLM is unavailable.
func (e *Engine) fallbackAnswer(intent Intent, contexts []*entityContext, hits []storage.SearchResult, payload map[string]interface{}) string {
	switch intent {
	case IntentTimeline:
		var sb strings.Builder
		for _, ec := range contexts {
			timeline := ec.timeline
			if len(timeline) > e.timelineLimit {
				timeline = timeline[:e.timelineLimit]
			}
			for _, entry := range timeline {
				fmt.Fprintf(&sb, "%s: %s (%s)\n",
					entry.Transition.Timestamp.Format("2006-01-02"), entry.Transition.Reason, ec.entity.Name)
			}
		}
		if sb.Len() > 0 {
			return "Timeline:\n" + sb.String()
		}

	case IntentBlocker:
		if rows, ok := payload["blocked"].([]map[string]interface{}); ok && len(rows) > 0 {
			var names []string
			for _, row := range rows {
				names = append(names, fmt.Sprintf("%v", row["entity"]))
			}
			return "Currently blocked: " + strings.Join(names, ", ")
		}
		return "Nothing is currently blocked."

	case IntentStatus:
		var parts []string
		for _, ec := range contexts {
			if ec.currentState == nil {
				parts = append(parts, fmt.Sprintf("%s: no recorded state", ec.entity.Name))
				continue
			}
			status, _ := ec.currentState.State["status"].(string)
			parts = append(parts, fmt.Sprintf("%s: %s", ec.entity.Name, status))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}

	case IntentOwnership, IntentRelationship:
		var parts []string
		for _, ec := range contexts {
			for _, rel := range ec.relationships {
				parts = append(parts, fmt.Sprintf("%s %s %s", rel.FromEntityName, rel.Type, rel.ToEntityName))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}

	case IntentAnalytics:
		if stats, ok := payload["stats"].(map[string]interface{}); ok {
			return fmt.Sprintf("The graph holds %v meetings, %v memories, %v entities, %v state transitions, and %v active relationships.",
				stats["meetings"], stats["memories"], stats["entities"], stats["state_transitions"], stats["active_relationships"])
		}
	}

	if len(hits) > 0 {
		var sb strings.Builder
		sb.WriteString("Most relevant discussion:\n")
		limit := 3
		if len(hits) < limit {
			limit = len(hits)
		}
		for _, hit := range hits[:limit] {
			fmt.Fprintf(&sb, "- %s\n", hit.Memory.Content)
		}
		return sb.String()
	}
	return "No relevant information found in the knowledge graph."
}

// followUps produces 1-3 deterministic next-question suggestions.
func (e *Engine) followUps(intent Intent, contexts []*entityContext) []string {
	name := ""
	if len(contexts) > 0 {
		name = contexts[0].entity.Name
	}

	switch intent {
	case IntentTimeline:
		if name != "" {
			return []string{
				fmt.Sprintf("What is the current status of %s?", name),
				fmt.Sprintf("Who owns %s?", name),
			}
		}
	case IntentBlocker:
		suggestions := []string{"What changed in the last 7 days?"}
		if name != "" {
			suggestions = append(suggestions, fmt.Sprintf("Show the timeline for %s", name))
		}
		return suggestions
	case IntentStatus:
		if name != "" {
			return []string{
				fmt.Sprintf("Show the timeline for %s", name),
				fmt.Sprintf("Is anything blocking %s?", name),
			}
		}
	case IntentOwnership:
		if name != "" {
			return []string{
				fmt.Sprintf("What else does the owner of %s work on?", name),
				fmt.Sprintf("What is the current status of %s?", name),
			}
		}
	case IntentRelationship:
		if name != "" {
			return []string{fmt.Sprintf("What depends on %s?", name)}
		}
	case IntentAnalytics:
		return []string{"What is currently blocked?", "What changed this week?"}
	}
	return []string{"What is currently blocked?"}
}

// relationshipRow flattens a relationship for the payload.
func relationshipRow(rel *types.EntityRelationship) map[string]interface{} {
	return map[string]interface{}{
		"from": rel.FromEntityName,
		"to":   rel.ToEntityName,
		"type": rel.Type,
	}
}

// hasBlockers reports whether a state's blockers value is non-empty.
func hasBlockers(v interface{}) bool {
	switch vv := v.(type) {
	case []interface{}:
		return len(vv) > 0
	case []string:
		return len(vv) > 0
	case string:
		return strings.TrimSpace(vv) != ""
	}
	return false
}
