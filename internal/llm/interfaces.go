// Package llm provides the language-model layer: an OpenAI-compatible
// chat client with retries, rate limiting, and a circuit breaker, plus a
// batching processor that performs semantic state comparison with caching,
// model fallback, and a deterministic non-LLM fallback path.
package llm

import "context"

// TextGenerator produces a completion for a prompt using a specific model.
// Implementations must be safe for concurrent use.
type TextGenerator interface {
	// Complete sends a single-turn prompt and returns the response text.
	// The model must be one of the configured chain; empty selects the
	// primary.
	Complete(ctx context.Context, model, prompt string) (string, error)

	// Models returns the configured model chain, primary first.
	Models() []string
}

// StatePair is one prior/candidate state pair submitted for comparison.
type StatePair struct {
	EntityID  string
	Prior     map[string]interface{}
	Candidate map[string]interface{}
}

// StateComparison is the comparison verdict for one pair.
type StateComparison struct {
	EntityID      string
	HasChanged    bool
	ChangedFields []string
	Reason        string
}

// StateComparer batch-compares entity state pairs. Implementations must
// return one comparison per input pair, aligned by index.
type StateComparer interface {
	CompareStatesBatch(ctx context.Context, pairs []StatePair) ([]StateComparison, error)
}
