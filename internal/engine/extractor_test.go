package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/pkg/types"
)

func candidateNames(cands []LocalCandidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Name)
	}
	return out
}

func TestExtractLocalFindsCapitalizedNames(t *testing.T) {
	cands, _ := ExtractLocal("went to the market with Sarah and Marcus this afternoon")
	names := candidateNames(cands)
	assert.Contains(t, names, "Sarah")
	assert.Contains(t, names, "Marcus")
}

func TestExtractLocalMultiWordNames(t *testing.T) {
	cands, _ := ExtractLocal("lunch meeting about Project Phoenix went long")
	assert.Contains(t, candidateNames(cands), "Project Phoenix")
}

func TestExtractLocalFiltersStopWords(t *testing.T) {
	cands, _ := ExtractLocal("Yesterday I saw it. Monday was rough. June too.")
	assert.Empty(t, cands)
}

func TestExtractLocalStripsLeadingStopWord(t *testing.T) {
	// A sentence-leading stop word capitalized into the same run as a
	// real name must not pollute it.
	cands, _ := ExtractLocal("Yesterday Sarah called about the trip")
	names := candidateNames(cands)
	assert.Contains(t, names, "Sarah")
	assert.NotContains(t, names, "Yesterday Sarah")
}

func TestExtractLocalRelationshipTemplates(t *testing.T) {
	cands, rels := ExtractLocal("Sarah works at Acme. Sarah lives in Portland")

	require.Len(t, rels, 2)
	assert.Equal(t, LocalRelationship{Subject: "Sarah", Predicate: "works_at", Object: "Acme"}, rels[0])
	assert.Equal(t, LocalRelationship{Subject: "Sarah", Predicate: "lives_in", Object: "Portland"}, rels[1])

	// Template objects get a kind guess; bare names default to person.
	byName := map[string]LocalCandidate{}
	for _, c := range cands {
		byName[c.Name] = c
	}
	assert.Equal(t, types.KindPerson, byName["Sarah"].Kind)
	assert.Equal(t, types.KindOrganization, byName["Acme"].Kind)
	assert.Equal(t, types.KindPlace, byName["Portland"].Kind)
}

func TestExtractLocalSubjectRelationshipDescriptor(t *testing.T) {
	cands, _ := ExtractLocal("Sarah works at Acme")
	byName := map[string]LocalCandidate{}
	for _, c := range cands {
		byName[c.Name] = c
	}
	assert.Equal(t, "works at Acme", byName["Sarah"].Relationship)
}

func TestExtractLocalDeduplicates(t *testing.T) {
	cands, _ := ExtractLocal("Sarah called. Sarah again. Sarah always calls.")
	count := 0
	for _, c := range cands {
		if c.Name == "Sarah" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractLocalContextSnippet(t *testing.T) {
	cands, _ := ExtractLocal("spent the whole evening talking to Sarah about the move")
	require.NotEmpty(t, cands)
	assert.Contains(t, cands[0].Context, "Sarah")
}

func TestExtractLocalEmptyText(t *testing.T) {
	cands, rels := ExtractLocal("   ")
	assert.Empty(t, cands)
	assert.Empty(t, rels)
}

func TestSnippetAroundKeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 100) + " Sarah " + strings.Repeat("é", 100)

	snippet := snippetAround(text, "Sarah")
	assert.True(t, utf8.ValidString(snippet))
	assert.Contains(t, snippet, "Sarah")
}

func TestRuneStartBacksOffToBoundary(t *testing.T) {
	s := "aé日"
	// Offsets: a=0, é=1..2, 日=3..5.
	assert.Equal(t, 0, runeStart(s, 0))
	assert.Equal(t, 1, runeStart(s, 2))
	assert.Equal(t, 3, runeStart(s, 4))
	assert.Equal(t, len(s), runeStart(s, len(s)))
}
