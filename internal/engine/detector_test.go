package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/pkg/types"
)

func known(names ...string) []types.Entity {
	out := make([]types.Entity, 0, len(names))
	for i, n := range names {
		out = append(out, types.Entity{
			ID:      "e" + string(rune('0'+i)),
			Name:    n,
			Status:  types.StatusActive,
			OwnerID: testOwner,
		})
	}
	return out
}

func TestDetectJobChange(t *testing.T) {
	pc := NewPatternClassifier()

	cases := []struct {
		text  string
		value string
	}{
		{"Sarah joined Initech last week", "Initech"},
		{"Sarah started working at Globex", "Globex"},
		{"turns out Sarah left Acme", "Acme"},
		{"Sarah is now the CTO at Hooli", "Hooli"},
		{"Sarah got a job at Pied Piper", "Pied Piper"},
	}
	for _, tc := range cases {
		changes := pc.Detect(tc.text, known("Sarah"))
		require.NotEmpty(t, changes, "text: %s", tc.text)
		assert.Equal(t, ChangeJob, changes[0].Type)
		assert.Equal(t, tc.value, changes[0].NewValue)
		assert.True(t, changes[0].Type.Supersedes())
	}
}

func TestDetectLocationChange(t *testing.T) {
	pc := NewPatternClassifier()

	changes := pc.Detect("Marcus moved to Lisbon for the new gig", known("Marcus"))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeLocation, changes[0].Type)
	assert.Equal(t, "Lisbon", changes[0].NewValue)
}

func TestDetectRelationshipChange(t *testing.T) {
	pc := NewPatternClassifier()

	changes := pc.Detect("sad news, Priya broke up with Dan", known("Priya"))
	require.NotEmpty(t, changes)
	assert.Equal(t, ChangeRelationship, changes[0].Type)
	assert.True(t, changes[0].Type.Supersedes())
}

func TestDetectStatusChangeIsAdditive(t *testing.T) {
	pc := NewPatternClassifier()

	changes := pc.Detect("Priya got promoted today", known("Priya"))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeStatus, changes[0].Type)
	assert.False(t, changes[0].Type.Supersedes())
}

func TestDetectIgnoresUnknownNames(t *testing.T) {
	pc := NewPatternClassifier()

	changes := pc.Detect("Sarah joined Initech", known("Marcus"))
	assert.Empty(t, changes)
}

func TestDetectCaseInsensitiveNameMatch(t *testing.T) {
	pc := NewPatternClassifier()

	changes := pc.Detect("heard sarah joined Initech", known("Sarah"))
	require.Len(t, changes, 1)
	assert.Equal(t, "Sarah", changes[0].EntityName)
}

func TestDetectAmbiguousNameFlagsEveryEntity(t *testing.T) {
	pc := NewPatternClassifier()

	entities := known("Sarah", "Sarah")
	changes := pc.Detect("Sarah moved to Berlin", entities)
	require.Len(t, changes, 2)
	assert.NotEqual(t, changes[0].EntityID, changes[1].EntityID)
}

func TestDetectOutsideWindowIgnored(t *testing.T) {
	pc := NewPatternClassifier()

	filler := ""
	for i := 0; i < 40; i++ {
		filler += "filler words here "
	}
	text := "Sarah was there. " + filler + "someone joined Initech"
	changes := pc.Detect(text, known("Sarah"))
	assert.Empty(t, changes)
}

func TestDetectEmptyInputs(t *testing.T) {
	pc := NewPatternClassifier()

	assert.Empty(t, pc.Detect("", known("Sarah")))
	assert.Empty(t, pc.Detect("Sarah joined Initech", nil))
}

func TestWindowAroundKeepsRuneBoundaries(t *testing.T) {
	// Multi-byte runes on both sides of the name put the raw byte
	// offsets of the window inside a rune.
	text := strings.Repeat("日", 100) + "Sarah" + strings.Repeat("日", 100)
	idx := strings.Index(text, "Sarah")

	window := windowAround(text, idx, len("Sarah"))
	assert.True(t, utf8.ValidString(window))
	assert.Contains(t, window, "Sarah")
}
