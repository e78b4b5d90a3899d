package llm

import (
	"fmt"
	"strings"
)

// buildUnderstandPrompt asks for structured entity/relationship/change
// extraction as strict JSON.
func buildUnderstandPrompt(req UnderstandRequest) string {
	var b strings.Builder
	b.WriteString(`Extract named entities, relationships, and detected state changes from the text below.

Return ONLY a JSON object with this exact shape:
{
  "entities": [{"name": "...", "type": "person|place|project|pet|organization|other", "relationship": "...", "context": "...", "sentiment": "positive|neutral|negative"}],
  "relationships": [{"subject": "...", "predicate": "works_at|lives_in|married_to|...", "object": "...", "confidence": 0.0}],
  "changes_detected": [{"entity_name": "...", "change_type": "job|location|relationship|status", "description": "...", "new_value": "..."}]
}

Rules:
- Only include entities actually named in the text.
- Use snake_case predicates.
- changes_detected lists only contradictions of previously known facts.
`)
	if len(req.KnownEntities) > 0 {
		b.WriteString("\nKnown entities: ")
		b.WriteString(strings.Join(req.KnownEntities, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

// buildCompressPrompt asks for a one-paragraph entity summary.
func buildCompressPrompt(req CompressRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Write a tight 1-2 sentence summary of what is known about %s (%s).
Return ONLY a JSON object: {"summary": "..."}

Recent context:
`, req.EntityName, req.EntityKind)
	for _, note := range req.ContextNotes {
		b.WriteString("- ")
		b.WriteString(note)
		b.WriteString("\n")
	}
	if len(req.Relationships) > 0 {
		b.WriteString("\nActive relationships:\n")
		for _, rel := range req.Relationships {
			b.WriteString("- ")
			b.WriteString(rel)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildReasonPrompt asks for cross-entity inferences.
func buildReasonPrompt(req ReasonRequest) string {
	var b strings.Builder
	b.WriteString(`Given the entities, relationships, and recent notes below, propose non-obvious
inferences connecting entities (e.g. collaboration, shared plans, life changes).

Return ONLY a JSON object:
{"inferences": [{"type": "...", "entities": ["..."], "inference": "...", "confidence": 0.0, "reasoning": "..."}]}

Only propose inferences supported by at least two pieces of evidence.

Entities:
`)
	for _, e := range req.Entities {
		fmt.Fprintf(&b, "- %s (%s, %d mentions", e.Name, e.Kind, e.MentionCount)
		if e.Relationship != "" {
			fmt.Fprintf(&b, ", %s", e.Relationship)
		}
		b.WriteString(")\n")
	}
	if len(req.Relationships) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, rel := range req.Relationships {
			b.WriteString("- ")
			b.WriteString(rel)
			b.WriteString("\n")
		}
	}
	if len(req.RecentNotes) > 0 {
		b.WriteString("\nRecent notes:\n")
		for _, note := range req.RecentNotes {
			b.WriteString("- ")
			b.WriteString(note)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildRatePrompt asks for an importance classification.
func buildRatePrompt(req RateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Classify how important the entity %q (%s) is to the journal owner.

Return ONLY a JSON object:
{"importance": "critical|high|medium|low|trivial", "importance_score": 0.0, "reasoning": "..."}

importance_score is in [0,1] and must be consistent with the tier.

Known relationship: %s
Mention count: %d
`, req.Name, req.Kind, orUnknown(req.Relationship), req.MentionCount)
	if len(req.ContextNotes) > 0 {
		b.WriteString("Recent context:\n")
		for _, note := range req.ContextNotes {
			b.WriteString("- ")
			b.WriteString(note)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
