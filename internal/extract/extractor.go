// Package extract turns raw meeting transcripts into typed extraction
// results: memories, entities with observed state, relationships, and
// meeting metadata. The primary path is one strict-JSON LLM call; when the
// LLM is unavailable a heuristic fallback produces a best-effort result.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macconnolly/meetgraph/pkg/types"
)

// EmailMetadata carries optional headers when the transcript arrived as an
// email body.
type EmailMetadata struct {
	Subject string
	From    string
	To      []string
	Date    time.Time
}

// jsonGenerator is the slice of the LLM processor the extractor needs.
type jsonGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, out interface{}) error
}

// Extractor produces ExtractionResults from transcripts.
type Extractor struct {
	generator jsonGenerator
}

// New creates an extractor backed by the given generator.
func New(generator jsonGenerator) *Extractor {
	return &Extractor{generator: generator}
}

const extractionPrompt = `You extract structured knowledge from a business meeting transcript.

Rules:
- Use full entity names exactly as they appear in the transcript. Never invent suffixes like "project" or "feature" that are not in the source.
- When a concept matches one of the known entities listed below, reuse that exact name.
- Classify every entity into exactly one type from: person, project, feature, task, decision, deadline, risk, goal, metric, team, system, technology.
- When the transcript states an entity's status, progress, owner, deadline, or blockers, record them under current_state. Extract progress as a percent or named phase. Extract blockers as an array. Omit fields the transcript does not mention.
- Relationship types: owns, works_on, reports_to, depends_on, blocks, includes, assigned_to, responsible_for, collaborates_with, mentioned_in, relates_to.
- Memory types: decision, action, insight, discussion, risk, deadline. Importance: high, med, low.

Respond with JSON only, in this shape:
{
  "memories": [{"content": "...", "speaker": "...", "timestamp": "...", "type": "discussion", "importance": "med", "entity_mentions": ["entity name"]}],
  "entities": [{"name": "...", "type": "...", "attributes": {}, "current_state": {"status": "...", "progress": "...", "blockers": []}}],
  "relationships": [{"from": "...", "to": "...", "type": "..."}],
  "metadata": {"summary": "...", "detailed_summary": "...", "topics": [], "participants": [], "decisions": [], "action_items": [], "meeting_type": "..."}
}

`

// llmExtraction mirrors the JSON shape the extraction prompt requests.
type llmExtraction struct {
	Memories []struct {
		Content        string   `json:"content"`
		Speaker        string   `json:"speaker"`
		Timestamp      string   `json:"timestamp"`
		Type           string   `json:"type"`
		Importance     string   `json:"importance"`
		EntityMentions []string `json:"entity_mentions"`
	} `json:"memories"`
	Entities      []types.ExtractedEntity       `json:"entities"`
	Relationships []types.ExtractedRelationship `json:"relationships"`
	Metadata      struct {
		Summary         string   `json:"summary"`
		DetailedSummary string   `json:"detailed_summary"`
		Topics          []string `json:"topics"`
		Participants    []string `json:"participants"`
		Decisions       []string `json:"decisions"`
		ActionItems     []string `json:"action_items"`
		MeetingType     string   `json:"meeting_type"`
	} `json:"metadata"`
}

// Extract runs the LLM extraction, degrading to the heuristic fallback
// when the call fails. An empty extraction is a hard failure.
func (e *Extractor) Extract(ctx context.Context, transcript, meetingID string, email *EmailMetadata, knownEntities []*types.Entity) (*types.ExtractionResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: empty transcript", types.ErrInvalidInput)
	}

	result, err := e.extractLLM(ctx, transcript, meetingID, email, knownEntities)
	if err != nil {
		log.Printf("extract: llm extraction failed for meeting %s, using fallback: %v", meetingID, err)
		result = FallbackExtract(transcript, meetingID)
		result.Metadata.ExtractionError = err.Error()
	}

	result.Metadata.TranscriptContext = transcript
	applyEmailMetadata(result, email)

	if result.IsEmpty() {
		return nil, fmt.Errorf("%w: meeting %s produced no memories, entities, or relationships", types.ErrExtractionFailed, meetingID)
	}
	return result, nil
}

// extractLLM performs the single strict-JSON extraction call.
func (e *Extractor) extractLLM(ctx context.Context, transcript, meetingID string, email *EmailMetadata, knownEntities []*types.Entity) (*types.ExtractionResult, error) {
	if e.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", types.ErrLLMUnavailable)
	}

	prompt := e.buildPrompt(transcript, email, knownEntities)

	var resp llmExtraction
	if err := e.generator.GenerateJSON(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	return e.assembleResult(&resp, meetingID), nil
}

// buildPrompt renders the extraction prompt with known entities and the
// transcript.
func (e *Extractor) buildPrompt(transcript string, email *EmailMetadata, knownEntities []*types.Entity) string {
	var sb strings.Builder
	sb.WriteString(extractionPrompt)

	if len(knownEntities) > 0 {
		type known struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		entries := make([]known, 0, len(knownEntities))
		for _, ent := range knownEntities {
			entries = append(entries, known{Name: ent.Name, Type: ent.Type})
		}
		if data, err := json.Marshal(entries); err == nil {
			sb.WriteString("Known entities:\n")
			sb.Write(data)
			sb.WriteString("\n\n")
		}
	}

	if email != nil {
		sb.WriteString(fmt.Sprintf("Email subject: %s\nEmail from: %s\n\n", email.Subject, email.From))
	}

	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)
	return sb.String()
}

// assembleResult converts the LLM response into a validated
// ExtractionResult. Entities with a missing name or unknown type are
// skipped, never failed.
func (e *Extractor) assembleResult(resp *llmExtraction, meetingID string) *types.ExtractionResult {
	result := &types.ExtractionResult{MeetingID: meetingID}

	now := time.Now().UTC()
	for _, m := range resp.Memories {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		memType := m.Type
		if !types.IsValidMemoryType(memType) {
			memType = types.MemoryDiscussion
		}
		importance := m.Importance
		if importance != types.ImportanceHigh && importance != types.ImportanceMedium && importance != types.ImportanceLow {
			importance = types.ImportanceMedium
		}
		result.Memories = append(result.Memories, &types.Memory{
			ID:             uuid.NewString(),
			MeetingID:      meetingID,
			Content:        m.Content,
			Speaker:        m.Speaker,
			Timestamp:      m.Timestamp,
			Metadata:       types.MemoryMetadata{Type: memType, Importance: importance},
			EntityMentions: m.EntityMentions,
			CreatedAt:      now,
		})
	}

	for _, ent := range resp.Entities {
		if strings.TrimSpace(ent.Name) == "" {
			log.Printf("extract: skipping entity with empty name")
			continue
		}
		if !types.IsValidEntityType(ent.Type) {
			log.Printf("extract: skipping entity %q with unknown type %q", ent.Name, ent.Type)
			continue
		}
		result.Entities = append(result.Entities, ent)
	}

	for _, rel := range resp.Relationships {
		if strings.TrimSpace(rel.From) == "" || strings.TrimSpace(rel.To) == "" {
			continue
		}
		rel.Type = types.NormalizeRelationshipType(rel.Type)
		result.Relationships = append(result.Relationships, rel)
	}

	result.Metadata = types.MeetingMetadata{
		Summary:          resp.Metadata.Summary,
		DetailedSummary:  resp.Metadata.DetailedSummary,
		Topics:           resp.Metadata.Topics,
		Participants:     resp.Metadata.Participants,
		Decisions:        resp.Metadata.Decisions,
		ActionItems:      resp.Metadata.ActionItems,
		MeetingType:      resp.Metadata.MeetingType,
		ExtractionMethod: "llm",
	}
	return result
}

// applyEmailMetadata fills metadata gaps from email headers.
func applyEmailMetadata(result *types.ExtractionResult, email *EmailMetadata) {
	if email == nil {
		return
	}
	if result.Metadata.Summary == "" && email.Subject != "" {
		result.Metadata.Summary = email.Subject
	}
	if len(result.Metadata.Participants) == 0 {
		var participants []string
		if email.From != "" {
			participants = append(participants, email.From)
		}
		participants = append(participants, email.To...)
		result.Metadata.Participants = participants
	}
}
