package query

import (
	"regexp"
	"strings"
)

// Intent is a query intent class. Classification drives which context is
// assembled and how the answer is synthesized.
type Intent string

const (
	IntentTimeline     Intent = "timeline"
	IntentBlocker      Intent = "blocker"
	IntentStatus       Intent = "status"
	IntentOwnership    Intent = "ownership"
	IntentAnalytics    Intent = "analytics"
	IntentRelationship Intent = "relationship"
	IntentSearch       Intent = "search"
)

// keywordBonus is added per keyword hit on top of pattern weights.
const keywordBonus = 0.3

type intentPattern struct {
	re     *regexp.Regexp
	weight float64
}

var intentPatterns = map[Intent][]intentPattern{
	IntentTimeline: {
		{regexp.MustCompile(`(?i)\btimeline\b`), 1.0},
		{regexp.MustCompile(`(?i)\bhistory of\b`), 0.9},
		{regexp.MustCompile(`(?i)\bhow (has|did) .+ (change|changed|evolve|evolved|progress|progressed)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bover time\b`), 0.8},
	},
	IntentBlocker: {
		{regexp.MustCompile(`(?i)\bblock(ed|ing|ers?)?\b`), 1.0},
		{regexp.MustCompile(`(?i)\bstuck\b`), 0.8},
		{regexp.MustCompile(`(?i)\bimpediments?\b`), 0.8},
		{regexp.MustCompile(`(?i)\bwaiting on\b`), 0.7},
	},
	IntentStatus: {
		{regexp.MustCompile(`(?i)\bstatus\b`), 1.0},
		{regexp.MustCompile(`(?i)\bprogress\b`), 0.8},
		{regexp.MustCompile(`(?i)\bwhere (are we|do we stand|does .+ stand)\b`), 0.8},
		{regexp.MustCompile(`(?i)\bhow is\b`), 0.6},
		{regexp.MustCompile(`(?i)\blatest update\b`), 0.8},
	},
	IntentOwnership: {
		{regexp.MustCompile(`(?i)\bwho owns\b`), 1.0},
		{regexp.MustCompile(`(?i)\bwho('s| is) (responsible|accountable|in charge)\b`), 1.0},
		{regexp.MustCompile(`(?i)\bowner(s| of)?\b`), 0.8},
		{regexp.MustCompile(`(?i)\bassigned to\b`), 0.8},
	},
	IntentAnalytics: {
		{regexp.MustCompile(`(?i)\bhow many\b`), 0.9},
		{regexp.MustCompile(`(?i)\b(statistics|stats|metrics)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bcount of\b`), 0.8},
		{regexp.MustCompile(`(?i)\bbreakdown\b`), 0.7},
	},
	IntentRelationship: {
		{regexp.MustCompile(`(?i)\bdepends? on\b`), 0.9},
		{regexp.MustCompile(`(?i)\brelated to\b`), 0.9},
		{regexp.MustCompile(`(?i)\b(connection|relationship)s? between\b`), 0.9},
		{regexp.MustCompile(`(?i)\bworks? (on|with)\b`), 0.7},
	},
	IntentSearch: {
		{regexp.MustCompile(`(?i)\b(find|search|look up)\b`), 0.8},
		{regexp.MustCompile(`(?i)\b(discussed|mentioned|talked about)\b`), 0.7},
	},
}

var intentKeywords = map[Intent][]string{
	IntentTimeline:     {"timeline", "history", "evolution", "changed", "progressed"},
	IntentBlocker:      {"blocked", "blocker", "blockers", "stuck", "blocking"},
	IntentStatus:       {"status", "progress", "update", "standing"},
	IntentOwnership:    {"owns", "owner", "responsible", "accountable"},
	IntentAnalytics:    {"many", "count", "total", "statistics", "metrics"},
	IntentRelationship: {"depends", "dependencies", "related", "connected"},
	IntentSearch:       {"find", "search", "about", "mentioned"},
}

// ClassifyIntent scores the query against per-intent pattern sets plus a
// keyword bonus per hit and returns the winner with a confidence clipped
// to [0, 1]. Ties, including the zero-score case, fall back to search.
func ClassifyIntent(query string) (Intent, float64) {
	lower := strings.ToLower(query)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = true
	}

	scores := make(map[Intent]float64, len(intentPatterns))
	for intent, patterns := range intentPatterns {
		var score float64
		for _, p := range patterns {
			if p.re.MatchString(query) {
				score += p.weight
			}
		}
		for _, kw := range intentKeywords[intent] {
			if words[kw] {
				score += keywordBonus
			}
		}
		scores[intent] = score
	}

	best := IntentSearch
	bestScore := scores[IntentSearch]
	for intent, score := range scores {
		if score > bestScore {
			best = intent
			bestScore = score
		}
	}

	confidence := bestScore
	if confidence > 1 {
		confidence = 1
	}
	return best, confidence
}
