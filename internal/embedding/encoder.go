// Package embedding provides deterministic 384-dimensional text encoding
// for semantic search and entity-name similarity. Vectors are L2-normalized
// so dot product equals cosine similarity.
//
// The encoder uses a hashed token projection: each token deterministically
// seeds a pseudo-random 384-d vector, and the text embedding is the mean of
// token vectors weighted by the attention mask. This keeps encoding fully
// reproducible across processes with no model download, while preserving
// the contract of a transformer-style encoder (tokenize, mask, mean-pool,
// normalize).
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	// Dimension is the output vector dimension.
	Dimension = 384

	// DefaultMaxLength caps the token sequence per input. Longer inputs are
	// truncated; transcripts are embedded per-memory so truncation is rare.
	DefaultMaxLength = 256
)

// Special tokens framing every sequence, BERT-style.
const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenPAD = "[PAD]"
)

// Encoder produces deterministic text embeddings.
// It is stateless after construction and safe for concurrent use.
type Encoder struct {
	dim       int
	maxLength int
}

// NewEncoder creates an encoder with the given sequence cap.
// maxLength <= 0 selects DefaultMaxLength.
func NewEncoder(maxLength int) *Encoder {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Encoder{dim: Dimension, maxLength: maxLength}
}

// Dimension returns the output vector dimension.
func (e *Encoder) Dimension() int {
	return e.dim
}

// Encode converts a single text into an L2-normalized vector.
// Encoding never fails: empty or untokenizable input yields a zero vector.
func (e *Encoder) Encode(text string) []float32 {
	tokens, mask := e.tokenize(text)

	sum := make([]float64, e.dim)
	var weight float64

	for i, tok := range tokens {
		if mask[i] == 0 {
			continue
		}
		tokVec := tokenVector(tok, e.dim)
		for d := 0; d < e.dim; d++ {
			sum[d] += tokVec[d]
		}
		weight++
	}

	vec := make([]float32, e.dim)
	if weight == 0 {
		return vec // zero vector: safe degradation, never an error
	}

	for d := 0; d < e.dim; d++ {
		vec[d] = float32(sum[d] / weight)
	}
	return Normalize(vec)
}

// EncodeBatch converts a list of texts into vectors with rows aligned to
// inputs. batchSize bounds the chunk processed per pass; values <= 0 use
// a default of 32. The chunking exists for symmetry with model-backed
// encoders where batch size bounds memory.
func (e *Encoder) EncodeBatch(texts []string, batchSize int) [][]float32 {
	if batchSize <= 0 {
		batchSize = 32
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			out[i] = e.Encode(texts[i])
		}
	}
	return out
}

// tokenize lowercases, splits on non-alphanumeric runes, frames the
// sequence with [CLS]/[SEP], pads to maxLength, and returns tokens plus
// the attention mask. Special tokens other than padding are masked out so
// pooling covers content tokens only.
func (e *Encoder) tokenize(text string) ([]string, []int) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, e.maxLength)
	mask := make([]int, 0, e.maxLength)

	tokens = append(tokens, tokenCLS)
	mask = append(mask, 0)

	for _, w := range words {
		if len(tokens) >= e.maxLength-1 {
			break
		}
		tokens = append(tokens, w)
		mask = append(mask, 1)
	}

	tokens = append(tokens, tokenSEP)
	mask = append(mask, 0)

	for len(tokens) < e.maxLength {
		tokens = append(tokens, tokenPAD)
		mask = append(mask, 0)
	}

	return tokens, mask
}

// tokenVector derives a deterministic pseudo-random vector for a token.
// An FNV-1a hash of the token seeds a splitmix64 generator; components are
// uniform in [-1, 1]. The same token always yields the same vector.
func tokenVector(token string, dim int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	state := h.Sum64()

	vec := make([]float64, dim)
	for d := 0; d < dim; d++ {
		state = splitmix64(&state)
		// Map the top 53 bits to [0,1), then shift to [-1,1).
		u := float64(state>>11) / (1 << 53)
		vec[d] = 2*u - 1
	}
	return vec
}

// splitmix64 advances the generator state and returns the next value.
func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Normalize scales vec to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Similarity returns the cosine similarity of a and b in [-1, 1].
// Mismatched lengths or zero vectors score 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BatchSimilarity returns the dot product of query against each row of
// matrix. Inputs are normalized internally so the result is cosine
// similarity regardless of caller preprocessing.
func BatchSimilarity(query []float32, matrix [][]float32) []float64 {
	q := Normalize(append([]float32(nil), query...))

	out := make([]float64, len(matrix))
	for i, row := range matrix {
		r := Normalize(append([]float32(nil), row...))
		if len(r) != len(q) {
			continue
		}
		var dot float64
		for d := range q {
			dot += float64(q[d]) * float64(r[d])
		}
		out[i] = dot
	}
	return out
}
