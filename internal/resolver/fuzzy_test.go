package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyScore(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{name: "identical", a: "Project Phoenix", b: "project phoenix", min: 1, max: 1},
		{name: "substring boosted", a: "Phoenix", b: "Project Phoenix", min: 0.9, max: 1},
		{name: "word order ignored", a: "Chen Sarah", b: "Sarah Chen", min: 0.95, max: 1},
		{name: "minor typo", a: "Pheonix", b: "Phoenix", min: 0.7, max: 1},
		{name: "unrelated", a: "Sarah Chen", b: "database migration", min: 0, max: 0.5},
		{name: "empty", a: "", b: "Phoenix", min: 0, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := FuzzyScore(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min, "score %f below min", score)
			assert.LessOrEqual(t, score, tt.max, "score %f above max", score)
		})
	}
}

func TestFuzzyScoreSymmetric(t *testing.T) {
	a, b := "Project Phoenix", "phoenix proj"
	assert.InDelta(t, FuzzyScore(a, b), FuzzyScore(b, a), 1e-9)
}

func TestPartialRatio(t *testing.T) {
	// The shorter string appears verbatim inside the longer one.
	assert.InDelta(t, 1.0, partialRatio("phoenix", "the phoenix project"), 1e-9)
}

func TestTokenSetRatioExtraWords(t *testing.T) {
	score := tokenSetRatio("the phoenix project", "phoenix")
	assert.Greater(t, score, 0.9)
}
