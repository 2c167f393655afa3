// Package process orchestrates meeting ingestion: entity upsert, prior
// state fetch, semantic state diffing, transition emission, relationship
// write-through, and memory mention rewriting. Stages run sequentially
// within one meeting because each depends on the previous one's output;
// different meetings may be processed concurrently.
package process

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/llm"
	"github.com/macconnolly/meetgraph/internal/resolver"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// stateCaptureConfidence is recorded on states emitted from extraction.
const stateCaptureConfidence = 0.9

// stateComparer is the slice of the LLM processor the pipeline needs.
type stateComparer interface {
	CompareStatesBatch(ctx context.Context, pairs []llm.StatePair) ([]llm.StateComparison, error)
	RefineReason(ctx context.Context, entityName string, comparison llm.StateComparison, excerpts []string, fallback string) string
}

// entityResolver is the slice of the resolver the pipeline needs.
type entityResolver interface {
	ResolveEntities(ctx context.Context, mentions []resolver.Mention) (map[string]resolver.Match, error)
	Invalidate()
}

// Summary reports what one meeting's processing produced, including the
// validation metrics. A meeting with entries in Errors is still ingested;
// the caller decides whether to retry.
type Summary struct {
	MeetingID          string
	EntitiesProcessed  int
	EntitiesCreated    int
	StatesCaptured     int
	TransitionsCreated int
	RelationshipsSaved int
	MemoriesSaved      int
	NoStateEntities    []string
	ConsistencyErrors  []string
	Errors             []string
}

// Processor ingests extraction results into the knowledge graph.
type Processor struct {
	store    storage.Store
	stores   *storage.Stores
	encoder  *embedding.Encoder
	resolver entityResolver
	comparer stateComparer
}

// New creates a meeting processor.
func New(store storage.Store, stores *storage.Stores, encoder *embedding.Encoder, res entityResolver, comparer stateComparer) *Processor {
	return &Processor{
		store:    store,
		stores:   stores,
		encoder:  encoder,
		resolver: res,
		comparer: comparer,
	}
}

// resolvedEntity tracks one upserted entity through the pipeline.
type resolvedEntity struct {
	entity  *types.Entity
	created bool
	state   map[string]interface{} // candidate state from extraction, nil when absent
}

// ProcessExtraction runs the ingestion stages for one meeting. Partial
// failures are collected in the summary rather than aborting: whatever was
// persisted stays consistent.
func (p *Processor) ProcessExtraction(ctx context.Context, result *types.ExtractionResult, meetingID string) (*Summary, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil extraction result", types.ErrInvalidInput)
	}
	summary := &Summary{MeetingID: meetingID}

	observedAt := p.meetingTimestamp(ctx, meetingID)

	// Stage 1: normalize and upsert entities.
	byName, err := p.upsertEntities(ctx, result, summary)
	if err != nil {
		return summary, err
	}

	// Stage 2: batch fetch prior states.
	ids := make([]string, 0, len(byName))
	seen := make(map[string]bool, len(byName))
	for _, re := range byName {
		if !seen[re.entity.ID] {
			seen[re.entity.ID] = true
			ids = append(ids, re.entity.ID)
		}
	}
	priorStates, err := p.store.GetEntityCurrentStates(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("%w: prior state fetch: %v", types.ErrPersistenceFailed, err)
	}

	// Stages 3-6: candidate states, semantic diff, transition emission,
	// reason refinement.
	p.trackStates(ctx, byName, priorStates, meetingID, observedAt, summary)

	// Stage 7: relationships.
	p.saveRelationships(ctx, result.Relationships, byName, meetingID, observedAt, summary)

	// Stage 8: memory mention rewriting and persistence.
	p.saveMemories(ctx, result.Memories, byName, summary)

	// Stage 9: counts.
	summary.EntitiesProcessed = len(ids)
	if err := p.store.UpdateMeetingCounts(ctx, meetingID, summary.MemoriesSaved, len(ids)); err != nil {
		log.Printf("process: failed to update counts for meeting %s: %v", meetingID, err)
	}

	return summary, nil
}

// meetingTimestamp returns the meeting date when the meeting record
// exists, so states and transitions carry meeting time rather than
// ingestion time.
func (p *Processor) meetingTimestamp(ctx context.Context, meetingID string) time.Time {
	if meeting, err := p.store.GetMeeting(ctx, meetingID); err == nil && !meeting.Date.IsZero() {
		return meeting.Date
	}
	return time.Now().UTC()
}

// upsertEntities validates and upserts every extracted entity and returns
// the name-keyed map used by the later stages. Keys are normalized names;
// entities with missing names or invalid types are logged and skipped.
// Repeated mentions of the same (normalized name, type) within one meeting
// collapse into a single entity with merged attributes and state.
func (p *Processor) upsertEntities(ctx context.Context, result *types.ExtractionResult, summary *Summary) (map[string]*resolvedEntity, error) {
	byName := make(map[string]*resolvedEntity)

	var toSave []*types.Entity
	var extracted []types.ExtractedEntity
	indexByKey := make(map[string]int)
	for _, ext := range result.Entities {
		if strings.TrimSpace(ext.Name) == "" || !types.IsValidEntityType(ext.Type) {
			log.Printf("process: skipping entity %q with type %q", ext.Name, ext.Type)
			continue
		}
		key := types.NormalizeName(ext.Name) + "|" + ext.Type
		if i, ok := indexByKey[key]; ok {
			extracted[i].Attributes = mergeMaps(extracted[i].Attributes, ext.Attributes)
			extracted[i].CurrentState = mergeMaps(extracted[i].CurrentState, ext.CurrentState)
			toSave[i].Attributes = extracted[i].Attributes
			continue
		}
		indexByKey[key] = len(extracted)
		toSave = append(toSave, &types.Entity{
			ID:         uuid.NewString(),
			Type:       ext.Type,
			Name:       ext.Name,
			Attributes: ext.Attributes,
		})
		extracted = append(extracted, ext)
	}
	if len(toSave) == 0 {
		return byName, nil
	}

	proposedIDs := make(map[string]bool, len(toSave))
	for _, e := range toSave {
		proposedIDs[e.ID] = true
	}

	saved, err := p.store.SaveEntities(ctx, toSave)
	if err != nil {
		return nil, fmt.Errorf("%w: entity upsert: %v", types.ErrPersistenceFailed, err)
	}

	for i, entity := range saved {
		created := proposedIDs[entity.ID]
		if created {
			summary.EntitiesCreated++
			if err := p.stores.SaveEntityEmbedding(ctx, entity, p.encoder.Encode(entity.Name)); err != nil {
				log.Printf("process: failed to save embedding for %q: %v", entity.Name, err)
			}
		}

		state := extracted[i].CurrentState
		if len(state) == 0 {
			state = nil
		}
		re := &resolvedEntity{entity: entity, created: created, state: types.NormalizeState(state)}
		byName[entity.NormalizedName] = re
		// The raw extracted name may normalize differently from the stored
		// canonical name when the store matched an existing record.
		byName[types.NormalizeName(extracted[i].Name)] = re
	}

	p.resolver.Invalidate()
	return byName, nil
}

// trackStates assembles candidate states, diffs them against priors, and
// emits states and transitions for real changes.
func (p *Processor) trackStates(ctx context.Context, byName map[string]*resolvedEntity, priorStates map[string]*types.EntityState, meetingID string, observedAt time.Time, summary *Summary) {
	// Deduplicate: two raw names can map to one entity.
	unique := make(map[string]*resolvedEntity)
	for _, re := range byName {
		unique[re.entity.ID] = re
	}

	var pairs []llm.StatePair
	pairEntities := make([]*resolvedEntity, 0)
	var states []*types.EntityState
	var transitions []*types.StateTransition

	for _, re := range unique {
		prior := priorStates[re.entity.ID]
		if re.state == nil {
			if prior == nil {
				summary.NoStateEntities = append(summary.NoStateEntities, re.entity.Name)
			}
			continue
		}

		if prior == nil {
			// First observation: state plus an initial transition covering
			// every observed field.
			fields := sortedKeys(re.state)
			states = append(states, newState(re.entity.ID, re.state, meetingID, observedAt))
			transitions = append(transitions, &types.StateTransition{
				ID:            uuid.NewString(),
				EntityID:      re.entity.ID,
				FromState:     nil,
				ToState:       re.state,
				ChangedFields: fields,
				Reason:        llm.DescribeChange(nil, re.state, fields),
				MeetingID:     meetingID,
				Timestamp:     observedAt,
			})
			continue
		}

		pairs = append(pairs, llm.StatePair{
			EntityID:  re.entity.ID,
			Prior:     prior.State,
			Candidate: re.state,
		})
		pairEntities = append(pairEntities, re)
	}

	if len(pairs) > 0 {
		comparisons, err := p.comparer.CompareStatesBatch(ctx, pairs)
		if err != nil || len(comparisons) != len(pairs) {
			summary.Errors = append(summary.Errors, fmt.Sprintf("state comparison failed: %v", err))
		} else {
			for i, cmp := range comparisons {
				if !cmp.HasChanged || len(cmp.ChangedFields) == 0 {
					continue
				}
				re := pairEntities[i]
				reason := cmp.Reason
				if reason == "" {
					fallback := llm.DescribeChange(pairs[i].Prior, pairs[i].Candidate, cmp.ChangedFields)
					reason = p.comparer.RefineReason(ctx, re.entity.Name, cmp, nil, fallback)
				}

				states = append(states, newState(re.entity.ID, re.state, meetingID, observedAt))
				transitions = append(transitions, &types.StateTransition{
					ID:            uuid.NewString(),
					EntityID:      re.entity.ID,
					FromState:     pairs[i].Prior,
					ToState:       re.state,
					ChangedFields: cmp.ChangedFields,
					Reason:        reason,
					MeetingID:     meetingID,
					Timestamp:     observedAt,
				})
			}
		}
	}

	if len(states) > 0 {
		if err := p.store.SaveEntityStates(ctx, states); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("state persistence failed: %v", err))
			return
		}
		summary.StatesCaptured = len(states)
	}
	if len(transitions) > 0 {
		if err := p.store.SaveTransitions(ctx, transitions); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("transition persistence failed: %v", err))
			return
		}
		summary.TransitionsCreated = len(transitions)
	}

	p.validateTransitions(transitions, summary)
}

// validateTransitions recomputes the deterministic diff for each emitted
// transition and flags disagreements as consistency errors.
func (p *Processor) validateTransitions(transitions []*types.StateTransition, summary *Summary) {
	for _, tr := range transitions {
		_, expected := llm.CompareStatesDeterministic(tr.FromState, tr.ToState)
		if !sameFields(tr.ChangedFields, expected) {
			summary.ConsistencyErrors = append(summary.ConsistencyErrors,
				fmt.Sprintf("entity %s: transition fields %v differ from recomputed diff %v",
					tr.EntityID, tr.ChangedFields, expected))
		}
	}
}

// saveRelationships resolves endpoints and persists deduplicated
// relationships.
func (p *Processor) saveRelationships(ctx context.Context, rels []types.ExtractedRelationship, byName map[string]*resolvedEntity, meetingID string, observedAt time.Time, summary *Summary) {
	if len(rels) == 0 {
		return
	}

	var toSave []*types.EntityRelationship
	for _, rel := range rels {
		from := p.lookupEntity(ctx, rel.From, byName)
		to := p.lookupEntity(ctx, rel.To, byName)
		if from == nil || to == nil {
			log.Printf("process: dropping relationship %q -> %q (unresolved endpoint)", rel.From, rel.To)
			continue
		}
		toSave = append(toSave, &types.EntityRelationship{
			ID:           uuid.NewString(),
			FromEntityID: from.ID,
			ToEntityID:   to.ID,
			Type:         types.NormalizeRelationshipType(rel.Type),
			Attributes:   rel.Attributes,
			MeetingID:    meetingID,
			Timestamp:    observedAt,
			Active:       true,
		})
	}
	if len(toSave) == 0 {
		return
	}

	saved, err := p.store.SaveRelationships(ctx, toSave)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("relationship persistence failed: %v", err))
		return
	}
	summary.RelationshipsSaved = saved
}

// saveMemories rewrites free-text entity mentions to resolved ids and
// persists memories with their embeddings.
func (p *Processor) saveMemories(ctx context.Context, memories []*types.Memory, byName map[string]*resolvedEntity, summary *Summary) {
	if len(memories) == 0 {
		return
	}

	for _, m := range memories {
		var resolved []string
		for _, mention := range m.EntityMentions {
			if entity := p.lookupEntity(ctx, mention, byName); entity != nil {
				resolved = append(resolved, entity.ID)
			}
		}
		m.EntityMentions = resolved
	}

	contents := make([]string, len(memories))
	for i, m := range memories {
		contents[i] = m.Content
	}
	vectors := p.encoder.EncodeBatch(contents, 0)

	if err := p.stores.SaveMemories(ctx, memories, vectors); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("memory persistence failed: %v", err))
		return
	}
	summary.MemoriesSaved = len(memories)
}

// lookupEntity resolves a free-text name via the in-meeting map first and
// the resolver second.
func (p *Processor) lookupEntity(ctx context.Context, name string, byName map[string]*resolvedEntity) *types.Entity {
	if re, ok := byName[types.NormalizeName(name)]; ok {
		return re.entity
	}

	results, err := p.resolver.ResolveEntities(ctx, []resolver.Mention{{Name: name}})
	if err != nil {
		log.Printf("process: resolution failed for %q: %v", name, err)
		return nil
	}
	if match, ok := results[name]; ok && match.Entity != nil {
		return match.Entity
	}
	return nil
}

// newState constructs an EntityState for a captured candidate.
func newState(entityID string, state map[string]interface{}, meetingID string, observedAt time.Time) *types.EntityState {
	return &types.EntityState{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		State:      state,
		MeetingID:  meetingID,
		Timestamp:  observedAt,
		Confidence: stateCaptureConfidence,
	}
}

// mergeMaps folds b into a copy of a, with b's keys winning. Returns nil
// when both inputs are empty.
func mergeMaps(a, b map[string]interface{}) map[string]interface{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sameFields compares two field lists as sets.
func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if !set[f] {
			return false
		}
	}
	return true
}
