// Package engine implements the entity memory graph: ingestion,
// conflict detection, supersession, importance scoring, decay,
// consolidation, and cross-entity inference.
package engine

import (
	"regexp"
	"strings"

	"github.com/scrypster/engram/pkg/types"
)

// ChangeType categorizes a detected state change.
type ChangeType string

const (
	ChangeJob          ChangeType = "job"
	ChangeLocation     ChangeType = "location"
	ChangeRelationship ChangeType = "relationship"
	ChangeStatus       ChangeType = "status"
)

// Supersedes reports whether this change type retires the current entity
// version. Life-status changes (pregnancy, graduation) are additive
// context, not supersession.
func (t ChangeType) Supersedes() bool {
	return t == ChangeJob || t == ChangeLocation || t == ChangeRelationship
}

// Valid reports whether t is one of the known change types.
func (t ChangeType) Valid() bool {
	return t.Supersedes() || t == ChangeStatus
}

// ChangeCandidate is one potential state change flagged against a known
// entity. Ambiguous matches (a name shared by several entities) are all
// surfaced; downstream logic decides what to act on.
type ChangeCandidate struct {
	EntityID    string
	EntityName  string
	Type        ChangeType
	MatchedText string
	NewValue    string
	Context     string
}

// ChangeClassifier scans new text against known entities for likely
// state changes. The pattern-based implementation is a fast local
// filter; a model-backed classifier can be swapped in without touching
// call sites.
type ChangeClassifier interface {
	Detect(text string, known []types.Entity) []ChangeCandidate
}

type patternFamily struct {
	changeType ChangeType
	patterns   []*regexp.Regexp
}

// PatternClassifier is the default ChangeClassifier: four families of
// compiled lexical templates (job, location, relationship, life-status),
// each capturing the new value where the phrasing carries one.
type PatternClassifier struct {
	families []patternFamily
}

// contextWindow is how many characters around an entity name are scanned
// for change patterns.
const contextWindow = 160

var valueCapture = `([A-Z][\w&.'-]*(?:[ ][A-Z][\w&.'-]*)*)`

// NewPatternClassifier compiles the built-in change-pattern families.
func NewPatternClassifier() *PatternClassifier {
	compile := func(templates ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(templates))
		for _, t := range templates {
			out = append(out, regexp.MustCompile(t))
		}
		return out
	}

	return &PatternClassifier{
		families: []patternFamily{
			{
				changeType: ChangeJob,
				patterns: compile(
					`(?:started at|started working at|joined|now works at|got a job at|hired by|new role at|new job at)\s+`+valueCapture,
					`(?:left|quit|resigned from|was laid off from|got fired from)\s+`+valueCapture,
					`is now (?:the\s+)?(?:a\s+)?[\w-]+\s+(?:at|of)\s+`+valueCapture,
				),
			},
			{
				changeType: ChangeLocation,
				patterns: compile(
					`(?:moved to|is moving to|relocated to|relocating to|now lives in|now living in|settled in)\s+` + valueCapture,
				),
			},
			{
				changeType: ChangeRelationship,
				patterns: compile(
					`(?:broke up with|divorced|separated from|split up with|split with)\s*`+valueCapture+`?`,
					`(?:got engaged to|engaged to|got married to|married|started dating|is dating|is seeing)\s+`+valueCapture,
					`(?:is single again|they broke up|got divorced)`,
				),
			},
			{
				changeType: ChangeStatus,
				patterns: compile(
					`(?:is pregnant|is now pregnant|had a baby|gave birth|is expecting)`,
					`(?:graduated|finished (?:school|college|university)|got (?:his|her|their) degree)`,
					`(?:retired|is retiring|passed away|is in the hospital|recovered from)`,
					`(?:got promoted|was promoted)`,
				),
			},
		},
	}
}

// Detect scans text for change patterns near each known entity's name.
// Matching is case-insensitive substring on the name; every match is
// returned, including multiple matches per entity and matches for
// entities sharing a name.
func (pc *PatternClassifier) Detect(text string, known []types.Entity) []ChangeCandidate {
	if strings.TrimSpace(text) == "" || len(known) == 0 {
		return nil
	}
	lower := strings.ToLower(text)

	var out []ChangeCandidate
	for i := range known {
		entity := &known[i]
		name := strings.ToLower(entity.Name)
		if name == "" {
			continue
		}

		idx := strings.Index(lower, name)
		if idx < 0 {
			continue
		}

		window := windowAround(text, idx, len(name))
		for _, family := range pc.families {
			for _, pattern := range family.patterns {
				for _, match := range pattern.FindAllStringSubmatch(window, -1) {
					out = append(out, ChangeCandidate{
						EntityID:    entity.ID,
						EntityName:  entity.Name,
						Type:        family.changeType,
						MatchedText: match[0],
						NewValue:    lastGroup(match),
						Context:     window,
					})
				}
			}
		}
	}
	return out
}

func windowAround(text string, idx, nameLen int) string {
	start := idx - contextWindow
	if start < 0 {
		start = 0
	}
	end := idx + nameLen + contextWindow
	if end > len(text) {
		end = len(text)
	}
	return text[runeStart(text, start):runeStart(text, end)]
}

func lastGroup(match []string) string {
	for i := len(match) - 1; i >= 1; i-- {
		if match[i] != "" {
			return strings.TrimSpace(match[i])
		}
	}
	return ""
}
