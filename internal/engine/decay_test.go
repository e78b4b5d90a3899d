package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/engram/pkg/types"
)

func daysAgo(n int) time.Time {
	return time.Now().UTC().Add(-time.Duration(n) * 24 * time.Hour)
}

func TestDecaySkipsWithinGracePeriod(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.LastMentionedAt = daysAgo(10) // medium grace is 30 days
	})

	result, err := sched.Run(ctx, testOwner, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Decayed)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceMedium.BaseScore(), got.ImportanceScore)
	// The freshness check was recorded so the next cycle re-evaluates.
	assert.NotNil(t, got.LastDecayAt)
}

func TestDecayReducesScorePastGrace(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.LastMentionedAt = daysAgo(45)
	})

	result, err := sched.Run(ctx, testOwner, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decayed)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.ImportanceScore, 1e-9)
	assert.Equal(t, types.StatusActive, got.Status)
}

func TestDecayNeverTouchesCritical(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Importance = types.ImportanceCritical
		e.ImportanceScore = types.ImportanceCritical.BaseScore()
		e.LastMentionedAt = daysAgo(400)
	})

	result, err := sched.Run(ctx, testOwner, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.ImportanceScore)
}

func TestDecayArchivesBelowThreshold(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Importance = types.ImportanceTrivial
		e.ImportanceScore = 0.1
		e.LastMentionedAt = daysAgo(30)
	})

	result, err := sched.Run(ctx, testOwner, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusArchived, got.Status)
	assert.Zero(t, got.ImportanceScore)
}

func TestDecayScoreNeverNegative(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Importance = types.ImportanceLow
		e.ImportanceScore = 0.05
		e.LastMentionedAt = daysAgo(60)
	})

	_, err := sched.Run(ctx, testOwner, time.Now().UTC())
	require.NoError(t, err)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.ImportanceScore, 0.0)
}

func TestDecayOncePerCycle(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.LastMentionedAt = daysAgo(45)
	})

	_, err := sched.Run(ctx, testOwner, now)
	require.NoError(t, err)

	// Immediate rerun: the cycle window gates a second decrement.
	result, err := sched.Run(ctx, testOwner, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, result.Decayed)

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.ImportanceScore, 1e-9)

	// A full cycle later the next decrement lands.
	result, err = sched.Run(ctx, testOwner, now.Add(DecayCycle+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decayed)

	got, err = store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.ImportanceScore, 1e-9)
}

func TestRefreshEntityRestoresBaseScore(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.ImportanceScore = 0.2
	})

	require.NoError(t, sched.RefreshEntity(ctx, e.ID, time.Now().UTC()))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ImportanceMedium.BaseScore(), got.ImportanceScore)
	assert.NotNil(t, got.LastDecayAt)
}

func TestRefreshEntityNeverLowersScore(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.ImportanceScore = 0.9
	})

	require.NoError(t, sched.RefreshEntity(ctx, e.ID, time.Now().UTC()))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.ImportanceScore)
}

func TestRefreshEntityUnarchives(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Status = types.StatusArchived
		e.ImportanceScore = 0.05
	})

	require.NoError(t, sched.RefreshEntity(ctx, e.ID, time.Now().UTC()))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Equal(t, types.ImportanceMedium.BaseScore(), got.ImportanceScore)
}

func TestRefreshEntityLeavesDismissedAlone(t *testing.T) {
	store := newTestStore(t)
	sched := NewDecayScheduler(store, zap.NewNop().Sugar())
	ctx := context.Background()

	e := seedEntity(t, store, func(e *types.Entity) {
		e.Status = types.StatusDismissed
		e.ImportanceScore = 0.2
	})

	require.NoError(t, sched.RefreshEntity(ctx, e.ID, time.Now().UTC()))

	got, err := store.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDismissed, got.Status)
	assert.Equal(t, 0.2, got.ImportanceScore)
}
