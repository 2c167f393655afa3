package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/internal/storage/sqlite"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// stubJSONGenerator returns a canned matches response or an error.
// confidences is optional; mentions absent from it omit the field.
type stubJSONGenerator struct {
	matches     map[string]string // mention -> entity id
	confidences map[string]float64
	err         error
	calls       int
}

func (s *stubJSONGenerator) GenerateJSON(_ context.Context, _ string, out interface{}) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	type match struct {
		Mention    string   `json:"mention"`
		EntityID   string   `json:"entity_id"`
		Confidence *float64 `json:"confidence,omitempty"`
	}
	var resp struct {
		Matches []match `json:"matches"`
	}
	for mention, id := range s.matches {
		m := match{Mention: mention, EntityID: id}
		if c, ok := s.confidences[mention]; ok {
			c := c
			m.Confidence = &c
		}
		resp.Matches = append(resp.Matches, m)
	}
	data, _ := json.Marshal(resp)
	return json.Unmarshal(data, out)
}

func testConfig() config.ResolutionConfig {
	return config.ResolutionConfig{
		VectorThreshold: 0.85,
		FuzzyThreshold:  0.75,
		UseLLM:          true,
		CacheTTLSec:     300,
	}
}

func setupResolver(t *testing.T, gen jsonGenerator, cfg config.ResolutionConfig) (*Resolver, *sqlite.Store, *storage.Stores, *embedding.Encoder) {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	encoder := embedding.NewEncoder(0)
	vectors := sqlite.NewVectorStore(store.GetDB(), encoder.Dimension())
	stores := storage.NewStores(store, vectors)

	return New(store, stores, encoder, gen, cfg), store, stores, encoder
}

func seedEntity(t *testing.T, store *sqlite.Store, stores *storage.Stores, encoder *embedding.Encoder, name, entityType string) *types.Entity {
	t.Helper()
	saved, err := store.SaveEntities(context.Background(), []*types.Entity{
		{ID: uuid.NewString(), Type: entityType, Name: name},
	})
	require.NoError(t, err)
	require.NoError(t, stores.SaveEntityEmbedding(context.Background(), saved[0], encoder.Encode(name)))
	return saved[0]
}

func TestResolveExact(t *testing.T) {
	r, store, stores, encoder := setupResolver(t, &stubJSONGenerator{}, testConfig())
	phoenix := seedEntity(t, store, stores, encoder, "Project Phoenix", types.EntityProject)

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "  project   PHOENIX ", Type: types.EntityProject},
	})
	require.NoError(t, err)

	match := results["  project   PHOENIX "]
	require.NotNil(t, match.Entity)
	assert.Equal(t, phoenix.ID, match.Entity.ID)
	assert.Equal(t, MethodExact, match.Method)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, uint64(1), r.Stats().Exact)
}

func TestResolveVectorStrategy(t *testing.T) {
	r, store, stores, encoder := setupResolver(t, &stubJSONGenerator{}, testConfig())
	phoenix := seedEntity(t, store, stores, encoder, "Project Phoenix", types.EntityProject)
	seedEntity(t, store, stores, encoder, "Atlas Migration", types.EntityProject)

	// Same name scores cosine 1.0 against its stored embedding.
	match, ok := r.resolveVector(context.Background(), Mention{Name: "Project Phoenix", Type: types.EntityProject})
	require.True(t, ok)
	require.NotNil(t, match.Entity)
	assert.Equal(t, phoenix.ID, match.Entity.ID)
	assert.Equal(t, MethodVector, match.Method)
	assert.GreaterOrEqual(t, match.Confidence, 0.85)

	// Type mismatch rejects the hit.
	_, ok = r.resolveVector(context.Background(), Mention{Name: "Project Phoenix", Type: types.EntityPerson})
	assert.False(t, ok)
}

func TestResolveFuzzyAlias(t *testing.T) {
	// "Phoenix" against stored "Project Phoenix": exact misses, the
	// deterministic vector encoder scores different token sets low, and the
	// substring-boosted fuzzy strategy should resolve it.
	r, store, stores, encoder := setupResolver(t, &stubJSONGenerator{}, testConfig())
	phoenix := seedEntity(t, store, stores, encoder, "Project Phoenix", types.EntityProject)
	seedEntity(t, store, stores, encoder, "Atlas Migration", types.EntityProject)

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "Phoenix", Type: types.EntityProject},
	})
	require.NoError(t, err)

	match := results["Phoenix"]
	require.NotNil(t, match.Entity)
	assert.Equal(t, phoenix.ID, match.Entity.ID)
	assert.Equal(t, MethodFuzzy, match.Method)
	assert.GreaterOrEqual(t, match.Confidence, 0.75)
}

func TestResolveLLMBatch(t *testing.T) {
	gen := &stubJSONGenerator{matches: map[string]string{}}
	r, store, stores, encoder := setupResolver(t, gen, testConfig())
	sarah := seedEntity(t, store, stores, encoder, "Sarah Chen", types.EntityPerson)
	seedEntity(t, store, stores, encoder, "Data Platform Team", types.EntityTeam)

	gen.matches["SC"] = sarah.ID
	gen.matches["the migration thing"] = ""

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "SC", Type: types.EntityPerson, Context: "SC will own the rollout"},
		{Name: "the migration thing"},
	})
	require.NoError(t, err)

	match := results["SC"]
	require.NotNil(t, match.Entity)
	assert.Equal(t, sarah.ID, match.Entity.ID)
	assert.Equal(t, MethodLLM, match.Method)

	noMatch := results["the migration thing"]
	assert.Nil(t, noMatch.Entity)
	assert.Equal(t, MethodLLMNoMatch, noMatch.Method)
	assert.Equal(t, 1, gen.calls, "all unresolved mentions share one call")
}

func TestResolveLLMConfidence(t *testing.T) {
	gen := &stubJSONGenerator{matches: map[string]string{}, confidences: map[string]float64{}}
	r, store, stores, encoder := setupResolver(t, gen, testConfig())
	sarah := seedEntity(t, store, stores, encoder, "Sarah Chen", types.EntityPerson)
	atlas := seedEntity(t, store, stores, encoder, "Atlas Migration", types.EntityProject)

	gen.matches["SC"] = sarah.ID
	gen.confidences["SC"] = 0.65
	gen.matches["that big data move"] = atlas.ID
	gen.confidences["that big data move"] = 1.7
	gen.matches["AM"] = atlas.ID // no confidence reported

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "SC", Type: types.EntityPerson},
		{Name: "that big data move"},
		{Name: "AM"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.65, results["SC"].Confidence, "reported confidence is used")
	assert.Equal(t, 1.0, results["that big data move"].Confidence, "out-of-range confidence is clamped")
	assert.Equal(t, 0.8, results["AM"].Confidence, "omitted confidence falls back to the default")
}

func TestResolveLLMDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.UseLLM = false
	r, store, stores, encoder := setupResolver(t, nil, cfg)
	seedEntity(t, store, stores, encoder, "Sarah Chen", types.EntityPerson)

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "completely unknown thing"},
	})
	require.NoError(t, err)
	assert.Equal(t, MethodLLMDisabled, results["completely unknown thing"].Method)
}

func TestResolveLLMError(t *testing.T) {
	gen := &stubJSONGenerator{err: errors.New("model unavailable")}
	r, store, stores, encoder := setupResolver(t, gen, testConfig())
	seedEntity(t, store, stores, encoder, "Sarah Chen", types.EntityPerson)

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "completely unknown thing"},
	})
	require.NoError(t, err)
	match := results["completely unknown thing"]
	assert.Nil(t, match.Entity)
	assert.Equal(t, MethodLLMError, match.Method)
	assert.Equal(t, 0.0, match.Confidence)
}

func TestResolveEmptyCatalog(t *testing.T) {
	r, _, _, _ := setupResolver(t, &stubJSONGenerator{}, testConfig())

	results, err := r.ResolveEntities(context.Background(), []Mention{
		{Name: "anything"},
	})
	require.NoError(t, err)
	assert.Equal(t, MethodNoEntities, results["anything"].Method)
}

func TestCacheInvalidation(t *testing.T) {
	r, store, stores, encoder := setupResolver(t, &stubJSONGenerator{}, testConfig())

	results, err := r.ResolveEntities(context.Background(), []Mention{{Name: "Phoenix"}})
	require.NoError(t, err)
	assert.Equal(t, MethodNoEntities, results["Phoenix"].Method)

	seedEntity(t, store, stores, encoder, "Phoenix", types.EntityProject)
	r.Invalidate()

	results, err = r.ResolveEntities(context.Background(), []Mention{{Name: "Phoenix"}})
	require.NoError(t, err)
	assert.Equal(t, MethodExact, results["Phoenix"].Method)
}

func TestResolveManyMentionsStatsAddUp(t *testing.T) {
	gen := &stubJSONGenerator{matches: map[string]string{}}
	r, store, stores, encoder := setupResolver(t, gen, testConfig())
	for i := 0; i < 5; i++ {
		seedEntity(t, store, stores, encoder, fmt.Sprintf("Entity %d", i), types.EntitySystem)
	}

	mentions := []Mention{
		{Name: "Entity 0", Type: types.EntitySystem},
		{Name: "Entity 1", Type: types.EntitySystem},
		{Name: "garbage mention xyz"},
	}
	gen.matches["garbage mention xyz"] = ""

	results, err := r.ResolveEntities(context.Background(), mentions)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	stats := r.Stats()
	total := stats.Exact + stats.Vector + stats.Fuzzy + stats.LLM +
		stats.LLMNoMatch + stats.LLMDisabled + stats.LLMError + stats.NoEntities
	assert.Equal(t, uint64(3), total)
}
