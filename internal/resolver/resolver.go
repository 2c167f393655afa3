// Package resolver matches entity mentions from extraction against the
// stored entity catalog. Strategies run in order of cost: exact normalized
// lookup, vector similarity over name embeddings, fuzzy string matching,
// and finally a single batched LLM call for everything still unresolved.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// maxCatalogEntities caps the catalog included in the LLM resolution
// prompt. Beyond this the prompt stops fitting sensibly and match quality
// degrades anyway.
const maxCatalogEntities = 200

// Match method labels, recorded on every resolution for observability.
const (
	MethodExact       = "exact"
	MethodVector      = "vector"
	MethodFuzzy       = "fuzzy"
	MethodLLM         = "llm"
	MethodLLMNoMatch  = "llm_no_match"
	MethodLLMDisabled = "llm_disabled"
	MethodLLMError    = "llm_error"
	MethodNoEntities  = "no_entities"
)

// Mention is one entity reference awaiting resolution. Type narrows
// candidates when known; Context carries surrounding transcript text for
// the LLM strategy.
type Mention struct {
	Name    string
	Type    string
	Context string
}

// Match is the outcome of resolving one mention. Entity is nil when no
// match was found; Method always records which strategy decided.
type Match struct {
	Entity     *types.Entity
	Method     string
	Confidence float64
}

// Stats counts resolutions per strategy.
type Stats struct {
	Exact       uint64
	Vector      uint64
	Fuzzy       uint64
	LLM         uint64
	LLMNoMatch  uint64
	LLMDisabled uint64
	LLMError    uint64
	NoEntities  uint64
}

// jsonGenerator is the slice of the LLM processor the resolver needs.
type jsonGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, out interface{}) error
}

// Resolver resolves mentions against the entity catalog. Safe for
// concurrent use.
type Resolver struct {
	store     storage.Store
	stores    *storage.Stores
	encoder   *embedding.Encoder
	generator jsonGenerator
	cfg       config.ResolutionConfig
	cache     *entityCache

	mu    sync.Mutex
	stats Stats
}

// New creates a resolver. generator may be nil when cfg.UseLLM is false.
func New(store storage.Store, stores *storage.Stores, encoder *embedding.Encoder, generator jsonGenerator, cfg config.ResolutionConfig) *Resolver {
	return &Resolver{
		store:     store,
		stores:    stores,
		encoder:   encoder,
		generator: generator,
		cfg:       cfg,
		cache:     newEntityCache(store, time.Duration(cfg.CacheTTLSec)*time.Second),
	}
}

// Invalidate drops the catalog cache. Call after writes that add entities.
func (r *Resolver) Invalidate() {
	r.cache.invalidate()
}

// Stats returns a snapshot of per-strategy counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResolveEntities resolves mentions, returning one match per mention keyed
// by the raw mention name. Resolution never fails a batch outright: a
// mention that cannot be resolved gets a nil-entity match with the method
// explaining why.
func (r *Resolver) ResolveEntities(ctx context.Context, mentions []Mention) (map[string]Match, error) {
	results := make(map[string]Match, len(mentions))
	if len(mentions) == 0 {
		return results, nil
	}

	catalog, err := r.cache.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: entity catalog unavailable: %v", types.ErrResolutionFailed, err)
	}
	if len(catalog) == 0 {
		r.record(func(s *Stats) { s.NoEntities += uint64(len(mentions)) })
		for _, m := range mentions {
			results[m.Name] = Match{Method: MethodNoEntities}
		}
		return results, nil
	}

	var unresolved []Mention
	for _, m := range mentions {
		if _, done := results[m.Name]; done {
			continue
		}
		if match, ok := r.resolveExact(ctx, m); ok {
			results[m.Name] = match
			continue
		}
		if match, ok := r.resolveVector(ctx, m); ok {
			results[m.Name] = match
			continue
		}
		if match, ok := r.resolveFuzzy(m, catalog); ok {
			results[m.Name] = match
			continue
		}
		unresolved = append(unresolved, m)
	}

	if len(unresolved) > 0 {
		r.resolveLLMBatch(ctx, unresolved, catalog, results)
	}
	return results, nil
}

// resolveExact matches on the normalized (name, type) key, trying the
// cache before the store.
func (r *Resolver) resolveExact(ctx context.Context, m Mention) (Match, bool) {
	if e := r.cache.lookup(m.Name, m.Type); e != nil {
		r.record(func(s *Stats) { s.Exact++ })
		return Match{Entity: e, Method: MethodExact, Confidence: 1.0}, true
	}

	e, err := r.store.GetEntityByName(ctx, m.Name, m.Type)
	if err != nil {
		return Match{}, false
	}
	r.record(func(s *Stats) { s.Exact++ })
	return Match{Entity: e, Method: MethodExact, Confidence: 1.0}, true
}

// resolveVector searches the entity-name embedding collection and accepts
// the best type-compatible hit above the threshold.
func (r *Resolver) resolveVector(ctx context.Context, m Mention) (Match, bool) {
	if r.stores == nil || r.encoder == nil {
		return Match{}, false
	}

	vector := r.encoder.Encode(m.Name)
	hits, err := r.stores.SearchEntityEmbeddings(ctx, vector, 5)
	if err != nil {
		log.Printf("resolver: vector search failed for %q: %v", m.Name, err)
		return Match{}, false
	}

	for _, hit := range hits {
		if hit.Score < r.cfg.VectorThreshold {
			break
		}
		if m.Type != "" {
			if hitType, _ := hit.Payload["type"].(string); hitType != "" && hitType != m.Type {
				continue
			}
		}
		entity, err := r.store.GetEntity(ctx, hit.ID)
		if err != nil {
			continue
		}
		r.record(func(s *Stats) { s.Vector++ })
		return Match{Entity: entity, Method: MethodVector, Confidence: hit.Score}, true
	}
	return Match{}, false
}

// resolveFuzzy scans the catalog for the best fuzzy score above the
// threshold, restricted to the mention's type when set.
func (r *Resolver) resolveFuzzy(m Mention, catalog []*types.Entity) (Match, bool) {
	var best *types.Entity
	bestScore := 0.0

	for _, e := range catalog {
		if m.Type != "" && e.Type != m.Type {
			continue
		}
		if score := FuzzyScore(m.Name, e.Name); score > bestScore {
			best = e
			bestScore = score
		}
	}

	if best == nil || bestScore < r.cfg.FuzzyThreshold {
		return Match{}, false
	}
	r.record(func(s *Stats) { s.Fuzzy++ })
	return Match{Entity: best, Method: MethodFuzzy, Confidence: bestScore}, true
}

// resolveLLMPrompt asks the model to match mentions against the catalog.
const resolveLLMPrompt = `You resolve entity mentions from a meeting transcript against a catalog of known entities.

A mention matches a catalog entry when they refer to the same real-world thing (abbreviations, nicknames, partial names, and project codenames count). Never match entities of different types.

Respond with a JSON object:
{"matches": [{"mention": "the mention text", "entity_id": "catalog id, or empty string when nothing matches", "confidence": 0.0}]}

confidence is your certainty in the match between 0 and 1. Return exactly one entry per mention. Respond with JSON only.

`

// resolveLLMBatch sends every unresolved mention and a bounded catalog in
// one call, writing outcomes into results.
func (r *Resolver) resolveLLMBatch(ctx context.Context, mentions []Mention, catalog []*types.Entity, results map[string]Match) {
	if !r.cfg.UseLLM || r.generator == nil {
		r.record(func(s *Stats) { s.LLMDisabled += uint64(len(mentions)) })
		for _, m := range mentions {
			results[m.Name] = Match{Method: MethodLLMDisabled}
		}
		return
	}

	byID := make(map[string]*types.Entity, len(catalog))
	type catalogEntry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	entries := make([]catalogEntry, 0, maxCatalogEntities)
	for _, e := range catalog {
		if len(entries) >= maxCatalogEntities {
			break
		}
		byID[e.ID] = e
		entries = append(entries, catalogEntry{ID: e.ID, Name: e.Name, Type: e.Type})
	}

	type mentionEntry struct {
		Mention string `json:"mention"`
		Type    string `json:"type,omitempty"`
		Context string `json:"context,omitempty"`
	}
	mentionDocs := make([]mentionEntry, len(mentions))
	for i, m := range mentions {
		mentionDocs[i] = mentionEntry{Mention: m.Name, Type: m.Type, Context: m.Context}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"mentions": mentionDocs,
		"catalog":  entries,
	})
	if err != nil {
		r.failLLM(mentions, results, err)
		return
	}

	var resp struct {
		Matches []struct {
			Mention    string   `json:"mention"`
			EntityID   string   `json:"entity_id"`
			Confidence *float64 `json:"confidence"`
		} `json:"matches"`
	}
	if err := r.generator.GenerateJSON(ctx, resolveLLMPrompt+string(payload), &resp); err != nil {
		r.failLLM(mentions, results, err)
		return
	}

	type llmVerdict struct {
		entityID   string
		confidence *float64
	}
	matched := make(map[string]llmVerdict, len(resp.Matches))
	for _, m := range resp.Matches {
		matched[types.NormalizeName(m.Mention)] = llmVerdict{entityID: m.EntityID, confidence: m.Confidence}
	}

	for _, m := range mentions {
		verdict, answered := matched[types.NormalizeName(m.Name)]
		if !answered {
			// Schema violation for this mention: the model dropped it.
			r.record(func(s *Stats) { s.LLMError++ })
			results[m.Name] = Match{Method: MethodLLMError}
			continue
		}
		if verdict.entityID == "" {
			r.record(func(s *Stats) { s.LLMNoMatch++ })
			results[m.Name] = Match{Method: MethodLLMNoMatch}
			continue
		}
		entity, ok := byID[verdict.entityID]
		if !ok {
			log.Printf("resolver: llm returned unknown entity id %q for %q", verdict.entityID, m.Name)
			r.record(func(s *Stats) { s.LLMError++ })
			results[m.Name] = Match{Method: MethodLLMError}
			continue
		}
		r.record(func(s *Stats) { s.LLM++ })
		results[m.Name] = Match{Entity: entity, Method: MethodLLM, Confidence: llmConfidence(verdict.confidence)}
	}
}

// defaultLLMConfidence is assumed when the model omits a confidence.
const defaultLLMConfidence = 0.8

// llmConfidence clamps a reported confidence to [0, 1], defaulting when
// the model omitted it.
func llmConfidence(reported *float64) float64 {
	if reported == nil {
		return defaultLLMConfidence
	}
	c := *reported
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// failLLM records an LLM failure for every pending mention.
func (r *Resolver) failLLM(mentions []Mention, results map[string]Match, err error) {
	log.Printf("resolver: llm resolution failed for %d mentions: %v", len(mentions), err)
	r.record(func(s *Stats) { s.LLMError += uint64(len(mentions)) })
	for _, m := range mentions {
		results[m.Name] = Match{Method: MethodLLMError}
	}
}

func (r *Resolver) record(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
