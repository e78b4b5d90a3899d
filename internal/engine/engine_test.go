package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/pkg/types"
)

const testOwner = "owner-1"

// File-based SQLite avoids connection pool issues with :memory:.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, store storage.Store, collab Collaborators) *Engine {
	t.Helper()
	eng, err := New(store, nil, collab, Options{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func seedEntity(t *testing.T, store storage.Store, mutate func(*types.Entity)) *types.Entity {
	t.Helper()
	now := time.Now().UTC()
	e := &types.Entity{
		ID:               uuid.NewString(),
		OwnerID:          testOwner,
		Name:             "Sarah",
		Kind:             types.KindPerson,
		MentionCount:     1,
		FirstMentionedAt: now,
		LastMentionedAt:  now,
		Status:           types.StatusActive,
	}
	if mutate != nil {
		mutate(e)
	}
	require.NoError(t, store.CreateEntity(context.Background(), e))
	return e
}

func TestIngestCreatesEntitiesAndRelationships(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	result, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "Grabbed lunch today. Sarah works at Acme now and seems happy.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.NoteID)
	assert.GreaterOrEqual(t, result.NewEntities, 2)

	sarah, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Equal(t, 1, sarah.MentionCount)
	assert.Equal(t, types.ImportanceMedium, sarah.Importance)
	assert.NotEmpty(t, sarah.ContextNotes)

	acme, err := store.ActiveEntityByName(ctx, testOwner, "Acme")
	require.NoError(t, err)
	assert.Equal(t, types.KindOrganization, acme.Kind)

	rel, err := store.ActiveRelationshipForSubject(ctx, testOwner, "Sarah", "employment")
	require.NoError(t, err)
	assert.Equal(t, "works_at", rel.Predicate)
	assert.Equal(t, "Acme", rel.ObjectName)

	facts, err := store.FactsForEntity(ctx, sarah.ID)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "works_at", facts[0].Predicate)
	assert.Equal(t, "Acme", facts[0].ObjectText)
}

func TestIngestRepeatMentionIsAdditive(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	seedEntity(t, store, nil)

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "went hiking with Sarah this morning",
	})
	require.NoError(t, err)

	sarah, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Equal(t, 2, sarah.MentionCount)

	// Still exactly one record for the name: mentions never fork versions.
	versions, err := store.EntitiesByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestIngestJobChangeSupersedes(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	original := seedEntity(t, store, func(e *types.Entity) {
		e.Relationship = "coworker"
		e.Confirmed = true
	})

	result, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "big news: Sarah joined Initech",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Supersessions, 1)

	// The old record is retired, not mutated.
	old, err := store.GetEntity(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuperseded, old.Status)
	assert.NotEmpty(t, old.SupersededByID)

	// Reads resolve to the successor, which carries identity forward.
	current, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, current.ID)
	assert.Equal(t, "coworker", current.Relationship)
	assert.True(t, current.Confirmed)
	assert.Equal(t, original.ID, current.SupersedesID)

	chain, err := eng.EntityChain(ctx, testOwner, current.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chain), 2)
	assert.Equal(t, original.ID, chain[0].ID)
}

func TestIngestStatusChangeIsAdditive(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	original := seedEntity(t, store, nil)

	result, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "heard that Sarah got promoted",
	})
	require.NoError(t, err)
	assert.Zero(t, result.Supersessions)

	// Same record, enriched in place.
	current, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Equal(t, original.ID, current.ID)
	assert.Contains(t, current.ContextNotes, "got promoted")
}

func TestRelationshipChangeWithinFamilySupersedes(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "met Sarah for coffee, Sarah works at Acme",
	})
	require.NoError(t, err)

	_, err = eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "apparently Sarah works at Initech these days",
	})
	require.NoError(t, err)

	rel, err := store.ActiveRelationshipForSubject(ctx, testOwner, "Sarah", "employment")
	require.NoError(t, err)
	assert.Equal(t, "Initech", rel.ObjectName)

	// One active employment relationship at a time; the old row survives
	// as superseded history.
	rels, err := store.ActiveRelationships(ctx, testOwner)
	require.NoError(t, err)
	employment := 0
	for _, r := range rels {
		if types.PredicateFamily(r.Predicate) == "employment" {
			employment++
		}
	}
	assert.Equal(t, 1, employment)
}

func TestDismissedEntityIsUntouchable(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	e := seedEntity(t, store, nil)
	require.NoError(t, eng.Dismiss(ctx, testOwner, e.ID))

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "ran into Sarah again, Sarah joined Initech",
	})
	require.NoError(t, err)

	// No new versions, no mention bump, no resurrection.
	versions, err := store.EntitiesByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, types.StatusDismissed, versions[0].Status)
	assert.Equal(t, 1, versions[0].MentionCount)

	_, err = store.ActiveEntityByName(ctx, testOwner, "Sarah")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIngestMergesCollaboratorExtraction(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{
		UnderstandResult: &llm.UnderstandResult{
			Entities: []llm.ExtractedEntity{
				{Name: "Sarah", Type: "person", Relationship: "cofounder", Sentiment: "positive"},
			},
		},
	}
	eng := newTestEngine(t, store, Collaborators{Understander: collab})
	ctx := context.Background()

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "long planning session with Sarah",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, collab.UnderstandCalls)

	sarah, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Equal(t, "cofounder", sarah.Relationship)
}

func TestIngestSurvivesCollaboratorFailure(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{UnderstandErr: context.DeadlineExceeded}
	eng := newTestEngine(t, store, Collaborators{Understander: collab})

	_, err := eng.Ingest(context.Background(), IngestRequest{
		OwnerID: testOwner,
		Text:    "quick sync with Sarah about the roadmap",
	})
	require.NoError(t, err)

	_, err = store.ActiveEntityByName(context.Background(), testOwner, "Sarah")
	assert.NoError(t, err)
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})

	_, err := eng.Ingest(context.Background(), IngestRequest{OwnerID: testOwner, Text: "   "})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = eng.Ingest(context.Background(), IngestRequest{Text: "hello"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestConfirmMarksEntity(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	e := seedEntity(t, store, nil)
	require.NoError(t, eng.Confirm(ctx, testOwner, e.ID))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)

	// Ownership is enforced on user actions.
	assert.ErrorIs(t, eng.Confirm(ctx, "someone-else", e.ID), storage.ErrNotFound)
	assert.ErrorIs(t, eng.Dismiss(ctx, "someone-else", e.ID), storage.ErrNotFound)
}

func TestConfirmReactivatesDismissedEntity(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	e := seedEntity(t, store, nil)
	require.NoError(t, eng.Dismiss(ctx, testOwner, e.ID))
	require.NoError(t, eng.Confirm(ctx, testOwner, e.ID))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.True(t, got.Confirmed)
}

func TestMaintenanceIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	seedEntity(t, store, func(e *types.Entity) {
		e.Name = "Old Acquaintance"
		e.MentionCount = 2
		e.FirstMentionedAt = old
		e.LastMentionedAt = old
	})
	seedEntity(t, store, func(e *types.Entity) {
		e.Name = "Mom"
		e.Relationship = "mother"
		e.MentionCount = 5
	})

	first, err := eng.RunMemoryMaintenance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Decay.Decayed)
	assert.GreaterOrEqual(t, first.Classified, 1)

	// Back-to-back rerun changes nothing: decay is gated by the cycle
	// window and classification skips already-tiered entities.
	second, err := eng.RunMemoryMaintenance(ctx, testOwner)
	require.NoError(t, err)
	assert.Zero(t, second.Decay.Decayed)
	assert.Zero(t, second.Decay.Archived)
	assert.Zero(t, second.Classified)
	assert.Zero(t, second.Consolidation.Consolidated)
}

func TestMaintenanceExpiresInferences(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	require.NoError(t, store.CreateInference(ctx, &types.Inference{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		Type:      "pattern",
		Text:      "owner tends to journal about work on Mondays",
		Status:    types.InferenceActive,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}))
	seedEntity(t, store, nil)

	result, err := eng.RunMemoryMaintenance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, result.InferencesExpired)

	active, err := store.ActiveInferences(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunMaintenanceForAllOwners(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	seedEntity(t, store, nil)
	seedEntity(t, store, func(e *types.Entity) {
		e.OwnerID = "owner-2"
		e.Name = "Rex"
		e.Kind = types.KindPet
	})

	results, err := eng.RunMaintenanceForAllOwners(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInferencesFilteredByEntityNames(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	fixtures := []struct {
		text     string
		subjects []string
	}{
		{"Sarah's circle is mostly startup people", []string{"Sarah", "Acme"}},
		{"Mom comes up whenever travel is planned", []string{"Mom"}},
	}
	for _, f := range fixtures {
		require.NoError(t, store.CreateInference(ctx, &types.Inference{
			ID:              uuid.NewString(),
			OwnerID:         testOwner,
			Type:            "pattern",
			Text:            f.text,
			SubjectEntities: f.subjects,
		}))
	}

	all, err := eng.Inferences(ctx, testOwner, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := eng.Inferences(ctx, testOwner, []string{"sarah"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Contains(t, filtered[0].Text, "Sarah")

	none, err := eng.Inferences(ctx, testOwner, []string{"Tom"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIngestRevivesArchivedEntity(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})
	ctx := context.Background()

	old := seedEntity(t, store, func(e *types.Entity) {
		e.Status = types.StatusArchived
		e.Importance = types.ImportanceLow
		e.ImportanceScore = 0.05
	})

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "Had coffee with Sarah downtown",
	})
	require.NoError(t, err)

	// The archived record is revived in place, not forked.
	versions, err := store.EntitiesByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, old.ID, versions[0].ID)
	assert.Equal(t, types.StatusActive, versions[0].Status)
	assert.Equal(t, 2, versions[0].MentionCount)
	assert.GreaterOrEqual(t, versions[0].ImportanceScore, types.ImportanceLow.BaseScore())
}

func TestCloseCancelsPendingRetries(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, store, Collaborators{})

	// Empty text fails ingestion immediately, which schedules a
	// one-second retry.
	require.True(t, eng.EnqueueIngest(IngestRequest{OwnerID: testOwner, Text: "   "}))
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		eng.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Close blocked on a pending retry")
	}

	assert.False(t, eng.EnqueueIngest(IngestRequest{OwnerID: testOwner, Text: "hello"}))

	// Outlive the retry window; a late re-send on the closed queue
	// would panic the test binary.
	time.Sleep(1100 * time.Millisecond)
}

func TestIngestAppliesCollaboratorDetectedChanges(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{
		UnderstandResult: &llm.UnderstandResult{
			ChangesDetected: []llm.DetectedChange{
				{EntityName: "Sarah", ChangeType: "job", NewValue: "Acme", Description: "Sarah started at Acme"},
				{EntityName: "Nobody", ChangeType: "job", NewValue: "Initech"},
				{EntityName: "Sarah", ChangeType: "promotion", NewValue: "VP"},
			},
		},
	}
	eng := newTestEngine(t, store, Collaborators{Understander: collab})
	ctx := context.Background()

	old := seedEntity(t, store, nil)

	// No capitalized names or change patterns in the text: only the
	// collaborator sees the change.
	result, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "big news from her today",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Supersessions)

	head, err := store.ActiveEntityByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	assert.Equal(t, old.ID, head.SupersedesID)

	prior, err := store.GetEntity(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuperseded, prior.Status)

	// Unknown names and unknown change types are dropped.
	_, err = store.ActiveEntityByName(ctx, testOwner, "Nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIngestSkipsCollaboratorChangeForDismissed(t *testing.T) {
	store := newTestStore(t)
	collab := &llm.MockCollaborator{
		UnderstandResult: &llm.UnderstandResult{
			ChangesDetected: []llm.DetectedChange{
				{EntityName: "Sarah", ChangeType: "job", NewValue: "Acme"},
			},
		},
	}
	eng := newTestEngine(t, store, Collaborators{Understander: collab})
	ctx := context.Background()

	dismissed := seedEntity(t, store, func(e *types.Entity) {
		e.Status = types.StatusDismissed
	})

	_, err := eng.Ingest(ctx, IngestRequest{
		OwnerID: testOwner,
		Text:    "big news from her today",
	})
	require.NoError(t, err)

	versions, err := store.EntitiesByName(ctx, testOwner, "Sarah")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, dismissed.ID, versions[0].ID)
	assert.Equal(t, types.StatusDismissed, versions[0].Status)
}
