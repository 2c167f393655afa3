package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macconnolly/meetgraph/pkg/types"
)

var (
	// speakerRe matches "Name: said something" transcript lines.
	speakerRe = regexp.MustCompile(`^([A-Z][A-Za-z .'\-]{0,40}?):\s+(.+)$`)

	// capitalizedPhraseRe matches multi-word capitalized phrases, the raw
	// material for candidate entities.
	capitalizedPhraseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)

	// actionRe matches commitment language that marks an action item.
	actionRe = regexp.MustCompile(`(?i)\b(will|needs? to|should|must|going to|action item|follow up|take care of)\b`)
)

// typeKeywords infers an entity type from words inside the phrase.
var typeKeywords = []struct {
	keyword    string
	entityType string
}{
	{"project", types.EntityProject},
	{"team", types.EntityTeam},
	{"platform", types.EntitySystem},
	{"system", types.EntitySystem},
	{"service", types.EntitySystem},
	{"api", types.EntityTechnology},
	{"database", types.EntityTechnology},
	{"feature", types.EntityFeature},
	{"deadline", types.EntityDeadline},
	{"risk", types.EntityRisk},
	{"goal", types.EntityGoal},
	{"metric", types.EntityMetric},
}

// FallbackExtract produces a best-effort extraction without an LLM:
// speaker lines become participants and memories, repeated capitalized
// phrases become candidate entities, and commitment language becomes
// action items. The metadata is marked basic_fallback so downstream
// consumers know the quality tier.
func FallbackExtract(transcript, meetingID string) *types.ExtractionResult {
	result := &types.ExtractionResult{
		MeetingID: meetingID,
		Metadata: types.MeetingMetadata{
			ExtractionMethod: "basic_fallback",
		},
	}

	now := time.Now().UTC()
	lines := strings.Split(transcript, "\n")

	participants := make(map[string]bool)
	var actionItems []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		speaker := ""
		content := line
		if m := speakerRe.FindStringSubmatch(line); m != nil {
			speaker = strings.TrimSpace(m[1])
			content = strings.TrimSpace(m[2])
			participants[speaker] = true
		}

		if speaker == "" {
			continue
		}

		memType := types.MemoryDiscussion
		if actionRe.MatchString(content) {
			memType = types.MemoryAction
			actionItems = append(actionItems, content)
		}

		result.Memories = append(result.Memories, &types.Memory{
			ID:        uuid.NewString(),
			MeetingID: meetingID,
			Content:   content,
			Speaker:   speaker,
			Metadata:  types.MemoryMetadata{Type: memType, Importance: types.ImportanceMedium},
			CreatedAt: now,
		})
	}

	// No speaker structure at all: keep the whole transcript as one memory
	// so the meeting is still searchable.
	if len(result.Memories) == 0 {
		result.Memories = append(result.Memories, &types.Memory{
			ID:        uuid.NewString(),
			MeetingID: meetingID,
			Content:   strings.TrimSpace(transcript),
			Metadata:  types.MemoryMetadata{Type: types.MemoryDiscussion, Importance: types.ImportanceMedium},
			CreatedAt: now,
		})
	}

	result.Entities = candidateEntities(transcript, participants)

	for p := range participants {
		result.Metadata.Participants = append(result.Metadata.Participants, p)
	}
	sort.Strings(result.Metadata.Participants)
	result.Metadata.ActionItems = actionItems

	return result
}

// candidateEntities finds capitalized multi-word phrases that repeat and
// turns them into entities. Phrases matching a known speaker become person
// entities; otherwise the type is inferred from keywords, defaulting to
// person since repeated capitalized names in meetings usually are people.
func candidateEntities(transcript string, speakers map[string]bool) []types.ExtractedEntity {
	counts := make(map[string]int)
	for _, phrase := range capitalizedPhraseRe.FindAllString(transcript, -1) {
		counts[phrase]++
	}

	seen := make(map[string]bool)
	var names []string
	for phrase, n := range counts {
		if n >= 2 || speakers[phrase] {
			names = append(names, phrase)
			seen[phrase] = true
		}
	}
	// Speakers are entities even when their names never repeat in the body.
	for speaker := range speakers {
		if !seen[speaker] {
			names = append(names, speaker)
		}
	}
	sort.Strings(names)

	var entities []types.ExtractedEntity
	for _, name := range names {
		entities = append(entities, types.ExtractedEntity{
			Name: name,
			Type: inferType(name, speakers),
		})
	}
	return entities
}

// inferType picks an entity type for a fallback candidate.
func inferType(name string, speakers map[string]bool) string {
	if speakers[name] {
		return types.EntityPerson
	}
	lower := strings.ToLower(name)
	for _, tk := range typeKeywords {
		if strings.Contains(lower, tk.keyword) {
			return tk.entityType
		}
	}
	return types.EntityPerson
}
