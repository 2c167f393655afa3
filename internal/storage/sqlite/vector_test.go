package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macconnolly/meetgraph/internal/storage"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	s := newTestStore(t)
	return NewVectorStore(s.GetDB(), 3)
}

func TestVectorUpsertGetSearch(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	points := []storage.VectorPoint{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"meeting_id": "m1"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"meeting_id": "m2"}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Payload: map[string]interface{}{"meeting_id": "m1"}},
	}
	require.NoError(t, v.Upsert(ctx, storage.CollectionMemories, points))

	got, err := v.Get(ctx, storage.CollectionMemories, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	assert.Equal(t, "m1", got.Payload["meeting_id"])

	_, err = v.Get(ctx, storage.CollectionMemories, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	hits, err := v.Search(ctx, storage.CollectionMemories, []float32{1, 0, 0}, storage.SearchFilters{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorSearchFilters(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	points := []storage.VectorPoint{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{
			"meeting_id": "m1", "entity_mentions": []string{"e1", "e2"},
		}},
		{ID: "b", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{
			"meeting_id": "m2", "entity_mentions": []string{"e3"},
		}},
	}
	require.NoError(t, v.Upsert(ctx, storage.CollectionMemories, points))

	hits, err := v.Search(ctx, storage.CollectionMemories, []float32{1, 0, 0},
		storage.SearchFilters{MeetingID: "m2"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)

	hits, err = v.Search(ctx, storage.CollectionMemories, []float32{1, 0, 0},
		storage.SearchFilters{EntityMentions: []string{"e2", "e9"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestVectorUpsertReplaces(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, v.Upsert(ctx, storage.CollectionEntityNames, []storage.VectorPoint{
		{ID: "e1", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"name": "Phoenix"}},
	}))
	require.NoError(t, v.Upsert(ctx, storage.CollectionEntityNames, []storage.VectorPoint{
		{ID: "e1", Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"name": "Project Phoenix"}},
	}))

	got, err := v.Get(ctx, storage.CollectionEntityNames, "e1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
	assert.Equal(t, "Project Phoenix", got.Payload["name"])
}

func TestVectorDimensionCheck(t *testing.T) {
	v := newTestVectorStore(t)

	err := v.Upsert(context.Background(), storage.CollectionMemories, []storage.VectorPoint{
		{ID: "bad", Vector: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestVectorUnknownCollection(t *testing.T) {
	v := newTestVectorStore(t)

	_, err := v.Get(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
