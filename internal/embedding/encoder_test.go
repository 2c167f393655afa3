package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDimension(t *testing.T) {
	enc := NewEncoder(0)
	vec := enc.Encode("Project Alpha kickoff meeting")
	assert.Len(t, vec, Dimension)
}

func TestEncodeDeterministic(t *testing.T) {
	enc := NewEncoder(0)
	a := enc.Encode("the api migration is blocked on vendor approval")
	b := enc.Encode("the api migration is blocked on vendor approval")
	assert.Equal(t, a, b)
}

func TestEncodeNormalized(t *testing.T) {
	enc := NewEncoder(0)
	vec := enc.Encode("quarterly planning review")

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-5)
}

func TestSelfSimilarityIsOne(t *testing.T) {
	enc := NewEncoder(0)
	vec := enc.Encode("Project Alpha")
	assert.InDelta(t, 1.0, Similarity(vec, vec), 1e-5)
}

func TestSimilarTextsScoreHigherThanUnrelated(t *testing.T) {
	enc := NewEncoder(0)
	base := enc.Encode("api migration project")
	near := enc.Encode("api migration")
	far := enc.Encode("lunch menu catering order")

	assert.Greater(t, Similarity(base, near), Similarity(base, far))
}

func TestEncodeEmptyReturnsZeroVector(t *testing.T) {
	enc := NewEncoder(0)

	for _, input := range []string{"", "   ", "!!! ---"} {
		vec := enc.Encode(input)
		require.Len(t, vec, Dimension)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestEncodeBatchAlignment(t *testing.T) {
	enc := NewEncoder(0)
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	batched := enc.EncodeBatch(texts, 2)
	require.Len(t, batched, len(texts))
	for i, text := range texts {
		assert.Equal(t, enc.Encode(text), batched[i], "row %d misaligned", i)
	}
}

func TestBatchSimilarityMatchesPairwise(t *testing.T) {
	enc := NewEncoder(0)
	query := enc.Encode("deadline for feature rollout")
	rows := [][]float32{
		enc.Encode("feature rollout deadline"),
		enc.Encode("unrelated grocery list"),
	}

	scores := BatchSimilarity(query, rows)
	require.Len(t, scores, 2)
	assert.InDelta(t, Similarity(query, rows[0]), scores[0], 1e-9)
	assert.InDelta(t, Similarity(query, rows[1]), scores[1], 1e-9)
}

func TestSimilarityDegenerateInputs(t *testing.T) {
	assert.Zero(t, Similarity(nil, nil))
	assert.Zero(t, Similarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, Similarity(make([]float32, 3), []float32{1, 2, 3}))
}

func TestTruncationRespectsMaxLength(t *testing.T) {
	short := NewEncoder(8)
	long := NewEncoder(0)

	// Identical prefix; the short encoder must ignore the divergent tail.
	prefix := "one two three four five six "
	a := short.Encode(prefix + "seven eight nine ten")
	b := short.Encode(prefix + "completely different trailing words here")
	assert.Equal(t, a, b)

	// The full-length encoder distinguishes them.
	c := long.Encode(prefix + "seven eight nine ten")
	d := long.Encode(prefix + "completely different trailing words here")
	assert.NotEqual(t, c, d)
}
