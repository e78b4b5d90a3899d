package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	// inferenceEntityLimit caps how many entities are handed to the
	// reasoning collaborator per pass.
	inferenceEntityLimit = 20

	// inferenceMinMentions keeps one-off mentions out of the reasoning
	// context.
	inferenceMinMentions = 2

	// inferenceNoteLimit is how many recent notes accompany the digest.
	inferenceNoteLimit = 10
)

// InferenceResult summarises one inference-generation pass.
type InferenceResult struct {
	Proposed int `json:"proposed"`
	Stored   int `json:"stored"`
	Skipped  int `json:"skipped"`
}

// InferenceEngine asks the reasoning collaborator for cross-entity
// observations and persists the novel ones. Without a reasoner it is a
// no-op: inference is purely collaborator-driven.
type InferenceEngine struct {
	store    storage.Store
	reasoner llm.Reasoner
	log      *zap.SugaredLogger
}

func NewInferenceEngine(store storage.Store, reasoner llm.Reasoner, log *zap.SugaredLogger) *InferenceEngine {
	return &InferenceEngine{store: store, reasoner: reasoner, log: log}
}

// Generate builds a digest of the owner's most-mentioned entities,
// their relationships, and recent notes, asks the reasoner for
// inferences, and stores those not already active verbatim.
func (ie *InferenceEngine) Generate(ctx context.Context, ownerID string, now time.Time) (InferenceResult, error) {
	var result InferenceResult
	if ie.reasoner == nil {
		return result, nil
	}

	entities, err := ie.store.ListEntities(ctx, storage.EntityFilter{
		OwnerID:     ownerID,
		Status:      types.StatusActive,
		MinMentions: inferenceMinMentions,
	})
	if err != nil {
		return result, err
	}
	if len(entities) == 0 {
		return result, nil
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].MentionCount > entities[j].MentionCount
	})
	if len(entities) > inferenceEntityLimit {
		entities = entities[:inferenceEntityLimit]
	}

	digests := make([]llm.EntityDigest, 0, len(entities))
	for _, e := range entities {
		digests = append(digests, llm.EntityDigest{
			Name:         e.Name,
			Kind:         string(e.Kind),
			Relationship: e.Relationship,
			Summary:      e.Summary,
			MentionCount: e.MentionCount,
			Importance:   string(e.Importance),
		})
	}

	var relStrings []string
	rels, err := ie.store.ActiveRelationships(ctx, ownerID)
	if err != nil {
		return result, err
	}
	for _, r := range rels {
		relStrings = append(relStrings, fmt.Sprintf("%s %s %s", r.SubjectName, r.Predicate, r.ObjectName))
	}

	var noteTexts []string
	notes, err := ie.store.RecentNotes(ctx, ownerID, inferenceNoteLimit)
	if err != nil {
		return result, err
	}
	for _, n := range notes {
		noteTexts = append(noteTexts, n.Text)
	}

	proposed, err := ie.reasoner.Reason(ctx, llm.ReasonRequest{
		Entities:      digests,
		Relationships: relStrings,
		RecentNotes:   noteTexts,
	})
	if err != nil {
		// Reasoning is opportunistic; a down collaborator just means
		// no new inferences this pass.
		ie.log.Debugw("reasoning collaborator unavailable", "error", err)
		return result, nil
	}
	result.Proposed = len(proposed)

	existing, err := ie.store.ActiveInferences(ctx, ownerID)
	if err != nil {
		return result, err
	}
	seen := make(map[string]bool, len(existing))
	for _, inf := range existing {
		seen[normalizeInference(inf.Text)] = true
	}

	for _, p := range proposed {
		key := normalizeInference(p.Inference)
		if key == "" || seen[key] {
			result.Skipped++
			continue
		}
		inf := &types.Inference{
			ID:                 uuid.NewString(),
			OwnerID:            ownerID,
			Type:               p.Type,
			Text:               p.Inference,
			SubjectEntities:    p.Entities,
			Confidence:         p.Confidence,
			SupportingEvidence: p.Reasoning,
			Status:             types.InferenceActive,
			ExpiresAt:          now.Add(types.InferenceTTL),
		}
		if err := ie.store.CreateInference(ctx, inf); err != nil {
			ie.log.Warnw("failed to store inference", "error", err)
			continue
		}
		seen[key] = true
		result.Stored++
	}
	return result, nil
}

// Cleanup soft-expires inferences past their TTL and returns how many
// were expired.
func (ie *InferenceEngine) Cleanup(ctx context.Context, ownerID string, now time.Time) (int, error) {
	return ie.store.ExpireInferences(ctx, ownerID, now)
}

// normalizeInference collapses case and whitespace so trivially
// restated inferences deduplicate.
func normalizeInference(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
