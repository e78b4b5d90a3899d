package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/engram/pkg/types"
)

// LocalCandidate is one entity candidate produced by the lexical
// extractor. The local path is always available and synchronous; the
// external collaborator refines or overrides these fields when it
// responds in time.
type LocalCandidate struct {
	Name         string
	Kind         types.EntityKind
	Relationship string
	Context      string
}

// LocalRelationship is a subject-predicate-object triple found by a
// lexical template.
type LocalRelationship struct {
	Subject   string
	Predicate string
	Object    string
}

// exclusions are capitalized words that never start an entity name:
// sentence-leading stop words, day names, month names.
var exclusions = map[string]bool{
	"the": true, "a": true, "an": true, "i": true, "me": true, "my": true,
	"we": true, "our": true, "it": true, "he": true, "she": true, "they": true,
	"this": true, "that": true, "these": true, "those": true,
	"today": true, "tomorrow": true, "yesterday": true, "tonight": true,
	"and": true, "but": true, "or": true, "so": true, "then": true,
	"when": true, "where": true, "what": true, "who": true, "why": true, "how": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"also": true, "after": true, "before": true, "later": true, "just": true,
	"had": true, "have": true, "was": true, "went": true, "got": true,
}

// capitalizedRun matches sequences of 1-4 capitalized words.
var capitalizedRun = regexp.MustCompile(`\b[A-Z][\w'’-]*(?:[ ][A-Z][\w'’-]*){0,3}\b`)

// name pattern fragment reused by the predicate templates.
const nameFrag = `([A-Z][\w'’-]*(?:[ ][A-Z][\w'’-]*){0,3})`

type predicateTemplate struct {
	re         *regexp.Regexp
	predicate  string
	objectKind types.EntityKind
}

var predicateTemplates = []predicateTemplate{
	{regexp.MustCompile(nameFrag + `(?:'s)?\s+works? at\s+` + nameFrag), "works_at", types.KindOrganization},
	{regexp.MustCompile(nameFrag + `\s+is (?:the|a)\s+(?:CEO|CTO|COO|founder|cofounder|co-founder)\s+(?:of|at)\s+` + nameFrag), "ceo_of", types.KindOrganization},
	{regexp.MustCompile(nameFrag + `\s+founded\s+` + nameFrag), "founder_of", types.KindOrganization},
	{regexp.MustCompile(nameFrag + `\s+lives? in\s+` + nameFrag), "lives_in", types.KindPlace},
	{regexp.MustCompile(nameFrag + `\s+moved to\s+` + nameFrag), "moved_to", types.KindPlace},
	{regexp.MustCompile(nameFrag + `\s+is (?:married to|dating|engaged to)\s+` + nameFrag), "partner_of", types.KindPerson},
	{regexp.MustCompile(nameFrag + `\s+is working on\s+` + nameFrag), "works_on", types.KindProject},
}

// ExtractLocal runs the lexical heuristics: capitalized-word runs
// filtered against the exclusion set, plus predicate templates that also
// yield relationships and a kind guess for their objects.
func ExtractLocal(text string) ([]LocalCandidate, []LocalRelationship) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	kinds := map[string]types.EntityKind{}
	relationships := map[string]string{}
	var rels []LocalRelationship

	for _, tmpl := range predicateTemplates {
		for _, match := range tmpl.re.FindAllStringSubmatch(text, -1) {
			subject := cleanName(match[1])
			object := cleanName(match[2])
			if subject == "" || object == "" {
				continue
			}
			rels = append(rels, LocalRelationship{
				Subject:   subject,
				Predicate: tmpl.predicate,
				Object:    object,
			})
			kinds[strings.ToLower(object)] = tmpl.objectKind
			if relationships[strings.ToLower(subject)] == "" {
				relationships[strings.ToLower(subject)] = strings.ReplaceAll(tmpl.predicate, "_", " ") + " " + object
			}
		}
	}

	seen := map[string]bool{}
	var candidates []LocalCandidate
	for _, raw := range capitalizedRun.FindAllString(text, -1) {
		name := cleanName(raw)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] || exclusions[key] {
			continue
		}
		seen[key] = true

		kind := kinds[key]
		if kind == "" {
			kind = types.KindPerson
		}
		candidates = append(candidates, LocalCandidate{
			Name:         name,
			Kind:         kind,
			Relationship: relationships[key],
			Context:      snippetAround(text, name),
		})
	}
	return candidates, rels
}

// cleanName trims leading excluded words from a capitalized run
// ("Yesterday Sarah" → "Sarah") and drops candidates that reduce to
// nothing.
func cleanName(raw string) string {
	words := strings.Fields(strings.TrimSpace(raw))
	for len(words) > 0 && exclusions[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, " ")
}

// snippetLength bounds the provenance snippet stored per mention.
const snippetLength = 120

// snippetAround returns a short window of text centered on the first
// occurrence of name, for context_notes provenance.
func snippetAround(text, name string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(name))
	if idx < 0 {
		idx = 0
	}
	start := idx - snippetLength/2
	if start < 0 {
		start = 0
	}
	end := start + snippetLength
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[runeStart(text, start):runeStart(text, end)])
}

// runeStart backs i off to the nearest rune boundary at or before it,
// so window slices never split a multi-byte character.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
