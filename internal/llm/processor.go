package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/macconnolly/meetgraph/pkg/types"
)

const (
	// comparePairsPerCall bounds the number of state pairs sent in one
	// prompt so responses stay parseable and within output limits.
	comparePairsPerCall = 100

	// cacheSize bounds the response cache; entries also expire by TTL.
	cacheSize = 2048
)

// ProcessorStats counts processor activity since construction.
type ProcessorStats struct {
	Calls                  uint64
	CacheHits              uint64
	ModelFallbacks         uint64
	DeterministicFallbacks uint64
}

// Processor batches semantic operations over a TextGenerator. Comparison
// results are cached per (prior, candidate) pair in a TTL cache; model
// failures walk the fallback chain; total LLM failure degrades to the
// deterministic field diff so ingestion never stalls on an unavailable
// endpoint.
type Processor struct {
	generator TextGenerator
	cache     *lru.LRU[string, StateComparison]

	mu    sync.Mutex
	stats ProcessorStats
}

// NewProcessor creates a processor with the given cache TTL.
func NewProcessor(generator TextGenerator, cacheTTL time.Duration) *Processor {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Processor{
		generator: generator,
		cache:     lru.NewLRU[string, StateComparison](cacheSize, nil, cacheTTL),
	}
}

// comparisonResponse mirrors the JSON shape the compare prompt requests.
type comparisonResponse struct {
	Comparisons []struct {
		Index         int      `json:"index"`
		HasChanged    bool     `json:"has_changed"`
		ChangedFields []string `json:"changed_fields"`
		Reason        string   `json:"reason"`
	} `json:"comparisons"`
}

// CompareStatesBatch compares prior/candidate pairs, preferring the LLM
// and degrading to the deterministic diff. Each (prior, candidate) pair is
// looked up in the cache individually; only uncached pairs reach the model,
// and cached and fresh results merge back into input order. The result is
// aligned with the input; it never fails outright.
func (p *Processor) CompareStatesBatch(ctx context.Context, pairs []StatePair) ([]StateComparison, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	results := make([]StateComparison, len(pairs))
	keys := make([]string, len(pairs))
	var misses []int
	for i, pair := range pairs {
		key, err := pairCacheKey(pair)
		if err == nil {
			keys[i] = key
			if cached, ok := p.cache.Get(key); ok {
				p.record(func(s *ProcessorStats) { s.CacheHits++ })
				cached.EntityID = pair.EntityID
				results[i] = cached
				continue
			}
		}
		misses = append(misses, i)
	}

	for start := 0; start < len(misses); start += comparePairsPerCall {
		end := start + comparePairsPerCall
		if end > len(misses) {
			end = len(misses)
		}
		indexes := misses[start:end]

		chunk := make([]StatePair, len(indexes))
		for j, idx := range indexes {
			chunk[j] = pairs[idx]
		}

		comparisons, err := p.compareChunk(ctx, chunk)
		if err != nil {
			log.Printf("processor: state comparison falling back to field diff: %v", err)
			comparisons = p.compareDeterministic(chunk)
		} else {
			for j, idx := range indexes {
				if keys[idx] != "" {
					p.cache.Add(keys[idx], comparisons[j])
				}
			}
		}
		for j, idx := range indexes {
			results[idx] = comparisons[j]
		}
	}
	return results, nil
}

// compareChunk runs one chunk of uncached pairs through the model chain.
func (p *Processor) compareChunk(ctx context.Context, chunk []StatePair) ([]StateComparison, error) {
	prompt, err := buildComparePrompt(chunk)
	if err != nil {
		return nil, err
	}

	text, err := p.completeWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var resp comparisonResponse
	if err := parseJSONResponse(text, &resp); err != nil {
		return nil, err
	}

	return alignComparisons(chunk, resp)
}

// compareDeterministic produces comparisons from the field diff alone.
func (p *Processor) compareDeterministic(chunk []StatePair) []StateComparison {
	p.record(func(s *ProcessorStats) { s.DeterministicFallbacks++ })

	out := make([]StateComparison, len(chunk))
	for i, pair := range chunk {
		changed, fields := CompareStatesDeterministic(pair.Prior, pair.Candidate)
		out[i] = StateComparison{
			EntityID:      pair.EntityID,
			HasChanged:    changed,
			ChangedFields: fields,
			Reason:        DescribeChange(pair.Prior, pair.Candidate, fields),
		}
	}
	return out
}

// alignComparisons maps the response entries back onto the input order and
// fills any gaps with the deterministic diff for that pair.
func alignComparisons(chunk []StatePair, resp comparisonResponse) ([]StateComparison, error) {
	if len(resp.Comparisons) == 0 {
		return nil, fmt.Errorf("llm: comparison response contained no entries")
	}

	out := make([]StateComparison, len(chunk))
	seen := make([]bool, len(chunk))
	for _, c := range resp.Comparisons {
		if c.Index < 0 || c.Index >= len(chunk) || seen[c.Index] {
			continue
		}
		fields := c.ChangedFields
		sort.Strings(fields)
		out[c.Index] = StateComparison{
			EntityID:      chunk[c.Index].EntityID,
			HasChanged:    c.HasChanged,
			ChangedFields: fields,
			Reason:        c.Reason,
		}
		seen[c.Index] = true
	}

	for i, ok := range seen {
		if ok {
			continue
		}
		changed, fields := CompareStatesDeterministic(chunk[i].Prior, chunk[i].Candidate)
		out[i] = StateComparison{
			EntityID:      chunk[i].EntityID,
			HasChanged:    changed,
			ChangedFields: fields,
			Reason:        DescribeChange(chunk[i].Prior, chunk[i].Candidate, fields),
		}
	}
	return out, nil
}

// buildComparePrompt renders the chunk as indexed JSON pairs.
func buildComparePrompt(chunk []StatePair) (string, error) {
	type pairDoc struct {
		Index     int                    `json:"index"`
		Prior     map[string]interface{} `json:"prior"`
		Candidate map[string]interface{} `json:"candidate"`
	}
	docs := make([]pairDoc, len(chunk))
	for i, pair := range chunk {
		docs[i] = pairDoc{Index: i, Prior: pair.Prior, Candidate: pair.Candidate}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal compare pairs: %w", err)
	}
	return compareStatesPrompt + string(data), nil
}

// GenerateJSON sends a prompt through the model chain and unmarshals the
// JSON response into out.
func (p *Processor) GenerateJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.completeWithFallback(ctx, prompt)
	if err != nil {
		return err
	}
	return parseJSONResponse(text, out)
}

// RefineReason asks for a one-sentence business explanation of a state
// transition. Returns the fallback reason unchanged when the LLM is
// unavailable.
func (p *Processor) RefineReason(ctx context.Context, entityName string, comparison StateComparison, excerpts []string, fallback string) string {
	doc := map[string]interface{}{
		"entity":         entityName,
		"changed_fields": comparison.ChangedFields,
		"change_summary": comparison.Reason,
		"excerpts":       excerpts,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fallback
	}

	var resp struct {
		Reason string `json:"reason"`
	}
	if err := p.GenerateJSON(ctx, refineReasonPrompt+string(data), &resp); err != nil {
		log.Printf("processor: reason refinement unavailable for %q: %v", entityName, err)
		return fallback
	}
	if resp.Reason == "" {
		return fallback
	}
	return resp.Reason
}

// completeWithFallback tries each model in the chain in order.
func (p *Processor) completeWithFallback(ctx context.Context, prompt string) (string, error) {
	p.record(func(s *ProcessorStats) { s.Calls++ })

	models := p.generator.Models()
	if len(models) == 0 {
		models = []string{""}
	}

	var lastErr error
	for i, model := range models {
		if i > 0 {
			p.record(func(s *ProcessorStats) { s.ModelFallbacks++ })
			log.Printf("processor: falling back to model %s: %v", model, lastErr)
		}
		text, err := p.generator.Complete(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: all models failed: %v", types.ErrLLMUnavailable, lastErr)
}

// TestConnectivity probes every configured model with a trivial prompt
// and returns a per-model result. A nil map entry means the model
// answered.
func (p *Processor) TestConnectivity(ctx context.Context) map[string]error {
	models := p.generator.Models()
	if len(models) == 0 {
		models = []string{""}
	}

	const probe = `Respond with exactly this JSON object: {"ok": true}`
	results := make(map[string]error, len(models))
	for _, model := range models {
		text, err := p.generator.Complete(ctx, model, probe)
		if err != nil {
			results[model] = err
			continue
		}
		var resp struct {
			OK bool `json:"ok"`
		}
		if err := parseJSONResponse(text, &resp); err != nil {
			results[model] = err
			continue
		}
		results[model] = nil
	}
	return results
}

// Stats returns a snapshot of processor counters.
func (p *Processor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Processor) record(fn func(*ProcessorStats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// pairCacheKey hashes the prior and candidate states of a pair into a
// stable cache key. The entity id is deliberately excluded so the same
// state transition caches once regardless of which entity reports it. Maps
// are marshaled with sorted keys by encoding/json, so identical states hash
// identically.
func pairCacheKey(pair StatePair) (string, error) {
	doc := struct {
		Prior     map[string]interface{} `json:"prior"`
		Candidate map[string]interface{} `json:"candidate"`
	}{Prior: pair.Prior, Candidate: pair.Candidate}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(append([]byte("compare:"), data...))
	return hex.EncodeToString(sum[:]), nil
}

// Compile-time assertion.
var _ StateComparer = (*Processor)(nil)
