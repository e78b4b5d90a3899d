package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/pkg/types"
)

func TestHeuristicImportance(t *testing.T) {
	cases := []struct {
		name   string
		entity types.Entity
		tier   types.ImportanceTier
		ok     bool
	}{
		{"family member", types.Entity{Name: "Linda", Relationship: "my mother", MentionCount: 3}, types.ImportanceCritical, true},
		{"self reference", types.Entity{Name: "me", MentionCount: 2}, types.ImportanceCritical, true},
		{"pet", types.Entity{Name: "Rex", Kind: types.KindPet, MentionCount: 2}, types.ImportanceHigh, true},
		{"close friend", types.Entity{Name: "Dan", Relationship: "best friend", MentionCount: 4}, types.ImportanceHigh, true},
		{"frequently mentioned", types.Entity{Name: "Priya", MentionCount: 12}, types.ImportanceHigh, true},
		{"single mention", types.Entity{Name: "Barista", MentionCount: 1}, types.ImportanceLow, true},
		{"no verdict", types.Entity{Name: "Marcus", Relationship: "coworker", MentionCount: 4}, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier, score, ok := HeuristicImportance(&tc.entity)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.tier, tier)
				assert.Equal(t, tc.tier.BaseScore(), score)
			}
		})
	}
}

func TestClassifyOwnerUsesHeuristicsFirst(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{}
	c := NewClassifier(store, collab, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Name = "Linda"
		e.Relationship = "my mother"
		e.MentionCount = 3
	})

	n, err := c.ClassifyOwner(ctx, testOwner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// Heuristics resolved it; no external call was spent.
	assert.Zero(t, collab.RateCalls)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceCritical, got.Importance)
	assert.Equal(t, 1.0, got.ImportanceScore)
}

func TestClassifyOwnerFallsBackToRater(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{
		RateResult: &llm.RateResult{Importance: "high", ImportanceScore: 0.8},
	}
	c := NewClassifier(store, collab, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Name = "Marcus"
		e.Relationship = "coworker"
		e.MentionCount = 4
	})

	n, err := c.ClassifyOwner(ctx, testOwner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, collab.RateCalls)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceHigh, got.Importance)
}

func TestClassifyOwnerSkipsAlreadyClassified(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{}
	c := NewClassifier(store, collab, zap.NewNop().Sugar())
	ctx := context.Background()

	seedEntity(t, store, func(e *types.Entity) {
		e.Importance = types.ImportanceHigh
		e.ImportanceScore = 0.8
		e.MentionCount = 3
	})

	n, err := c.ClassifyOwner(ctx, testOwner, false)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, collab.RateCalls)
}

func TestClassifyOwnerRaterFailureDegradesToSkip(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{RateErr: errors.New("collaborator down")}
	c := NewClassifier(store, collab, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Name = "Marcus"
		e.Relationship = "coworker"
		e.MentionCount = 4
	})

	n, err := c.ClassifyOwner(ctx, testOwner, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Untouched: the next pass will try again.
	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceMedium, got.Importance)
}
