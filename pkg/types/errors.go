package types

import "errors"

// Error taxonomy exposed to callers. Components wrap these sentinels with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrExtractionFailed indicates the extractor produced no usable result,
	// even after the heuristic fallback.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrResolutionFailed indicates entity resolution could not complete.
	ErrResolutionFailed = errors.New("entity resolution failed")

	// ErrPersistenceFailed indicates a storage write failed.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrLLMUnavailable indicates every configured model failed or the
	// circuit breaker is open.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrInvalidInput indicates a record is missing required fields or uses
	// an unknown enum value.
	ErrInvalidInput = errors.New("invalid input")
)
