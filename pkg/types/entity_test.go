package types_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/engram/pkg/types"
)

func TestAppendContextNoteCapsAtMax(t *testing.T) {
	e := &types.Entity{}
	for i := 0; i < types.MaxContextNotes+5; i++ {
		e.AppendContextNote(fmt.Sprintf("note %d", i))
	}

	assert.Len(t, e.ContextNotes, types.MaxContextNotes)
	// Oldest entries are evicted first.
	assert.Equal(t, "note 5", e.ContextNotes[0])
	assert.Equal(t, fmt.Sprintf("note %d", types.MaxContextNotes+4), e.ContextNotes[len(e.ContextNotes)-1])
}

func TestAppendContextNoteIgnoresEmpty(t *testing.T) {
	e := &types.Entity{}
	e.AppendContextNote("")
	assert.Empty(t, e.ContextNotes)
}

func TestBaseScoreOrdering(t *testing.T) {
	tiers := []types.ImportanceTier{
		types.ImportanceTrivial,
		types.ImportanceLow,
		types.ImportanceMedium,
		types.ImportanceHigh,
		types.ImportanceCritical,
	}
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, tiers[i].BaseScore(), tiers[i-1].BaseScore(),
			"%s should outrank %s", tiers[i], tiers[i-1])
	}
}

func TestBaseScoreUnknownTierDefaultsToMedium(t *testing.T) {
	assert.Equal(t, types.ImportanceMedium.BaseScore(), types.ImportanceTier("bogus").BaseScore())
	assert.False(t, types.ImportanceTier("bogus").Valid())
}

func TestPredicateFamilyGroupsExclusivePredicates(t *testing.T) {
	assert.Equal(t, types.PredicateFamily("works_at"), types.PredicateFamily("ceo_of"))
	assert.Equal(t, types.PredicateFamily("lives_in"), types.PredicateFamily("moved_to"))
	assert.NotEqual(t, types.PredicateFamily("works_at"), types.PredicateFamily("lives_in"))
	// Unknown predicates form their own family.
	assert.Equal(t, "mentors", types.PredicateFamily("mentors"))
}
