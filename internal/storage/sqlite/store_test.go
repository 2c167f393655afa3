package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestMeeting(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.SaveMeeting(context.Background(), &types.Meeting{
		ID:         id,
		Title:      "Sprint planning",
		Transcript: "Alice: Phoenix is on track.",
		Date:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestSaveAndGetMeeting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meeting := &types.Meeting{
		ID:           "m1",
		Title:        "Q1 kickoff",
		Transcript:   "Bob: let's kick off the quarter.",
		Date:         time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		Participants: []string{"Alice", "Bob"},
		Topics:       []string{"roadmap"},
		Decisions:    []string{"ship in March"},
	}
	require.NoError(t, s.SaveMeeting(ctx, meeting))

	got, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Q1 kickoff", got.Title)
	assert.Equal(t, []string{"Alice", "Bob"}, got.Participants)
	assert.Equal(t, []string{"ship in March"}, got.Decisions)

	_, err = s.GetMeeting(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateMeetingCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestMeeting(t, s, "m1")

	require.NoError(t, s.UpdateMeetingCounts(ctx, "m1", 12, 5))

	got, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 12, got.MemoryCount)
	assert.Equal(t, 5, got.EntityCount)

	assert.ErrorIs(t, s.UpdateMeetingCounts(ctx, "missing", 1, 1), storage.ErrNotFound)
}

func TestSaveEntitiesUpsertMergesAttributes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &types.Entity{
		ID:   uuid.NewString(),
		Type: types.EntityProject,
		Name: "Project Phoenix",
		Attributes: map[string]interface{}{
			"owner":    "alice",
			"priority": "high",
		},
	}
	saved, err := s.SaveEntities(ctx, []*types.Entity{first})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	originalID := saved[0].ID

	// Same normalized name and type, different casing and spacing: must hit
	// the existing record, merge attributes with new keys winning, and keep
	// the original id.
	second := &types.Entity{
		ID:   uuid.NewString(),
		Type: types.EntityProject,
		Name: "  project   PHOENIX ",
		Attributes: map[string]interface{}{
			"priority": "critical",
			"deadline": "2026-04-01",
		},
	}
	saved, err = s.SaveEntities(ctx, []*types.Entity{second})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, originalID, saved[0].ID)
	assert.Equal(t, "alice", saved[0].Attributes["owner"])
	assert.Equal(t, "critical", saved[0].Attributes["priority"])
	assert.Equal(t, "2026-04-01", saved[0].Attributes["deadline"])

	// Same name, different type: distinct entity.
	third := &types.Entity{
		ID:   uuid.NewString(),
		Type: types.EntityRisk,
		Name: "Project Phoenix",
	}
	saved, err = s.SaveEntities(ctx, []*types.Entity{third})
	require.NoError(t, err)
	assert.NotEqual(t, originalID, saved[0].ID)

	all, err := s.GetAllEntities(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveEntitiesRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveEntities(context.Background(), []*types.Entity{
		{ID: uuid.NewString(), Type: "spaceship", Name: "X"},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestGetEntityByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveEntities(ctx, []*types.Entity{
		{ID: uuid.NewString(), Type: types.EntityPerson, Name: "Sarah Chen"},
	})
	require.NoError(t, err)

	got, err := s.GetEntityByName(ctx, "  sarah   CHEN ", "")
	require.NoError(t, err)
	assert.Equal(t, saved[0].ID, got.ID)

	got, err = s.GetEntityByName(ctx, "Sarah Chen", types.EntityPerson)
	require.NoError(t, err)
	assert.Equal(t, saved[0].ID, got.ID)

	_, err = s.GetEntityByName(ctx, "Sarah Chen", types.EntityProject)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityCurrentStateAndTimeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestMeeting(t, s, "m1")
	saveTestMeeting(t, s, "m2")

	saved, err := s.SaveEntities(ctx, []*types.Entity{
		{ID: uuid.NewString(), Type: types.EntityProject, Name: "Phoenix"},
	})
	require.NoError(t, err)
	entityID := saved[0].ID

	// No state yet: nil, not an error.
	st, err := s.GetEntityCurrentState(ctx, entityID)
	require.NoError(t, err)
	assert.Nil(t, st)

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveEntityStates(ctx, []*types.EntityState{
		{ID: uuid.NewString(), EntityID: entityID, State: map[string]interface{}{"status": "planning"}, MeetingID: "m1", Timestamp: t1, Confidence: 0.9},
		{ID: uuid.NewString(), EntityID: entityID, State: map[string]interface{}{"status": "active"}, MeetingID: "m2", Timestamp: t2, Confidence: 0.9},
	}))

	st, err = s.GetEntityCurrentState(ctx, entityID)
	require.NoError(t, err)
	require.NotNil(t, st)
	// Status is normalized on write.
	assert.Equal(t, types.StatusInProgress, st.State["status"])
	assert.Equal(t, "m2", st.MeetingID)

	require.NoError(t, s.SaveTransitions(ctx, []*types.StateTransition{
		{ID: uuid.NewString(), EntityID: entityID, FromState: nil, ToState: map[string]interface{}{"status": "planned"}, ChangedFields: []string{"status"}, MeetingID: "m1", Timestamp: t1},
		{ID: uuid.NewString(), EntityID: entityID, FromState: map[string]interface{}{"status": "planned"}, ToState: map[string]interface{}{"status": "in_progress"}, ChangedFields: []string{"status"}, Reason: "work started", MeetingID: "m2", Timestamp: t2},
	}))

	timeline, err := s.GetEntityTimeline(ctx, entityID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	// Newest first, joined with meeting title.
	assert.Equal(t, "m2", timeline[0].Transition.MeetingID)
	assert.Equal(t, "Sprint planning", timeline[0].MeetingTitle)
	assert.Nil(t, timeline[1].Transition.FromState)
}

func TestGetEntityCurrentStatesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestMeeting(t, s, "m1")

	saved, err := s.SaveEntities(ctx, []*types.Entity{
		{ID: uuid.NewString(), Type: types.EntityProject, Name: "Phoenix"},
		{ID: uuid.NewString(), Type: types.EntityProject, Name: "Atlas"},
	})
	require.NoError(t, err)

	require.NoError(t, s.SaveEntityStates(ctx, []*types.EntityState{
		{ID: uuid.NewString(), EntityID: saved[0].ID, State: map[string]interface{}{"status": "done"}, MeetingID: "m1", Timestamp: time.Now().UTC(), Confidence: 1},
	}))

	states, err := s.GetEntityCurrentStates(ctx, []string{saved[0].ID, saved[1].ID})
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Equal(t, types.StatusCompleted, states[saved[0].ID].State["status"])
	assert.NotContains(t, states, saved[1].ID)
}

func TestSaveRelationshipsDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestMeeting(t, s, "m1")
	saveTestMeeting(t, s, "m2")

	saved, err := s.SaveEntities(ctx, []*types.Entity{
		{ID: uuid.NewString(), Type: types.EntityPerson, Name: "Alice"},
		{ID: uuid.NewString(), Type: types.EntityProject, Name: "Phoenix"},
	})
	require.NoError(t, err)
	alice, phoenix := saved[0].ID, saved[1].ID

	n, err := s.SaveRelationships(ctx, []*types.EntityRelationship{
		{ID: uuid.NewString(), FromEntityID: alice, ToEntityID: phoenix, Type: types.RelOwns, MeetingID: "m1", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same active edge from a later meeting: skipped, dedup is global.
	n, err = s.SaveRelationships(ctx, []*types.EntityRelationship{
		{ID: uuid.NewString(), FromEntityID: alice, ToEntityID: phoenix, Type: types.RelOwns, MeetingID: "m2", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Different type is a new edge; alias normalization applies first.
	n, err = s.SaveRelationships(ctx, []*types.EntityRelationship{
		{ID: uuid.NewString(), FromEntityID: alice, ToEntityID: phoenix, Type: "working on", MeetingID: "m2", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rels, err := s.GetEntityRelationships(ctx, alice, true)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	for _, r := range rels {
		assert.Equal(t, "Alice", r.FromEntityName)
		assert.Equal(t, "Phoenix", r.ToEntityName)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveTestMeeting(t, s, "m1")

	saved, err := s.SaveEntities(ctx, []*types.Entity{
		{ID: uuid.NewString(), Type: types.EntityPerson, Name: "Alice"},
		{ID: uuid.NewString(), Type: types.EntityProject, Name: "Phoenix"},
	})
	require.NoError(t, err)

	require.NoError(t, s.SaveMemories(ctx, []*types.Memory{
		{ID: uuid.NewString(), MeetingID: "m1", Content: "Phoenix is on track."},
	}))
	_, err = s.SaveRelationships(ctx, []*types.EntityRelationship{
		{ID: uuid.NewString(), FromEntityID: saved[0].ID, ToEntityID: saved[1].ID, Type: types.RelOwns, MeetingID: "m1", Active: true},
	})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Meetings)
	assert.Equal(t, 1, stats.Memories)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.ActiveRelationships)
	assert.Equal(t, 1, stats.EntitiesByType[types.EntityPerson])
	assert.Equal(t, 1, stats.EntitiesByType[types.EntityProject])
}
