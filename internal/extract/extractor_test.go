package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macconnolly/meetgraph/pkg/types"
)

// stubGenerator returns a canned JSON document or an error.
type stubGenerator struct {
	response string
	err      error
	prompt   string
}

func (s *stubGenerator) GenerateJSON(_ context.Context, prompt string, out interface{}) error {
	s.prompt = prompt
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.response), out)
}

const sampleTranscript = `Alice: Project Phoenix is now in progress, about 30% done.
Bob: Great. I will follow up with the Data Platform Team on the migration.
Alice: Sarah Chen owns the rollout plan for Project Phoenix.
Bob: The Data Platform Team should be ready next week.`

func TestExtractLLMPath(t *testing.T) {
	gen := &stubGenerator{response: `{
		"memories": [
			{"content": "Phoenix is 30% done", "speaker": "Alice", "type": "discussion", "importance": "high", "entity_mentions": ["Project Phoenix"]}
		],
		"entities": [
			{"name": "Project Phoenix", "type": "project", "current_state": {"status": "in_progress", "progress": "30%"}},
			{"name": "Sarah Chen", "type": "person"},
			{"name": "Mystery Thing", "type": "spaceship"}
		],
		"relationships": [
			{"from": "Sarah Chen", "to": "Project Phoenix", "type": "owner of"}
		],
		"metadata": {"summary": "Phoenix status", "participants": ["Alice", "Bob"], "meeting_type": "status"}
	}`}
	e := New(gen)

	result, err := e.Extract(context.Background(), sampleTranscript, "m1", nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Memories, 1)
	assert.Equal(t, "m1", result.Memories[0].MeetingID)
	assert.NotEmpty(t, result.Memories[0].ID)
	assert.Equal(t, types.ImportanceHigh, result.Memories[0].Metadata.Importance)

	// The invalid-typed entity is skipped, not fatal.
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "Project Phoenix", result.Entities[0].Name)
	assert.Equal(t, "in_progress", result.Entities[0].CurrentState["status"])

	// Relationship alias is normalized.
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, types.RelOwns, result.Relationships[0].Type)

	assert.Equal(t, "llm", result.Metadata.ExtractionMethod)
	assert.Equal(t, sampleTranscript, result.Metadata.TranscriptContext)
}

func TestExtractKnownEntitiesInPrompt(t *testing.T) {
	gen := &stubGenerator{response: `{
		"memories": [{"content": "x", "type": "discussion"}],
		"entities": [], "relationships": [], "metadata": {}
	}`}
	e := New(gen)

	known := []*types.Entity{{Name: "Project Phoenix", Type: types.EntityProject}}
	_, err := e.Extract(context.Background(), sampleTranscript, "m1", nil, known)
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "Project Phoenix")
	assert.Contains(t, gen.prompt, "Known entities:")
}

func TestExtractFallbackOnLLMFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	e := New(gen)

	result, err := e.Extract(context.Background(), sampleTranscript, "m1", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "basic_fallback", result.Metadata.ExtractionMethod)
	assert.Contains(t, result.Metadata.ExtractionError, "connection refused")
	assert.NotEmpty(t, result.Memories)
	assert.Contains(t, result.Metadata.Participants, "Alice")
	assert.Contains(t, result.Metadata.Participants, "Bob")
}

func TestExtractEmptyTranscript(t *testing.T) {
	e := New(&stubGenerator{})
	_, err := e.Extract(context.Background(), "   ", "m1", nil, nil)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestExtractEmptyResultIsHardFailure(t *testing.T) {
	gen := &stubGenerator{response: `{"memories": [], "entities": [], "relationships": [], "metadata": {}}`}
	e := New(gen)

	_, err := e.Extract(context.Background(), "hello", "m1", nil, nil)
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
}

func TestExtractEmailMetadata(t *testing.T) {
	gen := &stubGenerator{response: `{
		"memories": [{"content": "x", "type": "discussion"}],
		"entities": [], "relationships": [], "metadata": {}
	}`}
	e := New(gen)

	email := &EmailMetadata{Subject: "Q2 planning", From: "alice@example.com", To: []string{"bob@example.com"}}
	result, err := e.Extract(context.Background(), "some email body", "m1", email, nil)
	require.NoError(t, err)
	assert.Equal(t, "Q2 planning", result.Metadata.Summary)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, result.Metadata.Participants)
}

func TestFallbackExtract(t *testing.T) {
	result := FallbackExtract(sampleTranscript, "m1")

	assert.Equal(t, "basic_fallback", result.Metadata.ExtractionMethod)
	assert.Equal(t, []string{"Alice", "Bob"}, result.Metadata.Participants)
	require.Len(t, result.Memories, 4)
	assert.Equal(t, "Alice", result.Memories[0].Speaker)

	// "I will follow up" is commitment language.
	assert.Equal(t, types.MemoryAction, result.Memories[1].Metadata.Type)
	assert.NotEmpty(t, result.Metadata.ActionItems)

	// Repeated capitalized phrases become entities with keyword-inferred
	// types; speakers become person entities.
	names := make(map[string]string)
	for _, e := range result.Entities {
		names[e.Name] = e.Type
	}
	assert.Equal(t, types.EntityProject, names["Project Phoenix"])
	assert.Equal(t, types.EntityTeam, names["Data Platform Team"])
	assert.Equal(t, types.EntityPerson, names["Alice"])
}

func TestFallbackExtractUnstructured(t *testing.T) {
	result := FallbackExtract("just a plain paragraph without speakers", "m1")
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "just a plain paragraph without speakers", result.Memories[0].Content)
}
