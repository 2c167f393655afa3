package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"Show me the timeline for Project Phoenix", IntentTimeline},
		{"How has the migration evolved over time?", IntentTimeline},
		{"What is currently blocked?", IntentBlocker},
		{"Is anything stuck waiting on the platform team?", IntentBlocker},
		{"What is the status of Project Phoenix?", IntentStatus},
		{"How is the rollout progressing? Give me a progress update", IntentStatus},
		{"Who owns the checkout feature?", IntentOwnership},
		{"Who is responsible for the data migration?", IntentOwnership},
		{"How many entities are in the graph?", IntentAnalytics},
		{"Show me the stats breakdown", IntentAnalytics},
		{"What depends on the payments service?", IntentRelationship},
		{"What is the relationship between Sarah and Phoenix?", IntentRelationship},
		{"Find discussions about the budget", IntentSearch},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			intent, conf := ClassifyIntent(tt.query)
			assert.Equal(t, tt.want, intent)
			assert.Greater(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestClassifyIntentNoSignalFallsBackToSearch(t *testing.T) {
	intent, conf := ClassifyIntent("xyzzy plugh")
	assert.Equal(t, IntentSearch, intent)
	assert.Equal(t, 0.0, conf)
}
