package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// familyKeywords mark relationships that make an entity critical.
var familyKeywords = []string{
	"mom", "mother", "dad", "father", "spouse", "wife", "husband",
	"partner", "child", "son", "daughter", "sister", "brother",
}

// selfNames are names the owner uses for themselves.
var selfNames = map[string]bool{"me": true, "i": true, "myself": true}

// closeFriendKeywords promote an entity to high importance.
var closeFriendKeywords = []string{"best friend", "close friend"}

// HeuristicImportance resolves obvious importance cases without an
// external call. The boolean reports whether the heuristics reached a
// verdict; otherwise the caller falls through to the external rater.
func HeuristicImportance(e *types.Entity) (types.ImportanceTier, float64, bool) {
	rel := strings.ToLower(e.Relationship)
	name := strings.ToLower(strings.TrimSpace(e.Name))

	if selfNames[name] {
		return types.ImportanceCritical, types.ImportanceCritical.BaseScore(), true
	}
	for _, kw := range familyKeywords {
		if strings.Contains(rel, kw) {
			return types.ImportanceCritical, types.ImportanceCritical.BaseScore(), true
		}
	}
	if e.Kind == types.KindPet || strings.Contains(rel, "pet") {
		return types.ImportanceHigh, types.ImportanceHigh.BaseScore(), true
	}
	for _, kw := range closeFriendKeywords {
		if strings.Contains(rel, kw) {
			return types.ImportanceHigh, types.ImportanceHigh.BaseScore(), true
		}
	}
	if e.MentionCount >= 10 {
		return types.ImportanceHigh, types.ImportanceHigh.BaseScore(), true
	}
	if e.MentionCount <= 1 {
		return types.ImportanceLow, types.ImportanceLow.BaseScore(), true
	}
	return "", 0, false
}

// Classifier assigns importance tiers, heuristics first, external rater
// as fallback. The rater is optional; without it, unresolved entities
// keep their default tier until the next pass.
type Classifier struct {
	store storage.Store
	rater llm.ImportanceRater
	log   *zap.SugaredLogger
}

// NewClassifier creates an importance classifier. rater may be nil.
func NewClassifier(store storage.Store, rater llm.ImportanceRater, log *zap.SugaredLogger) *Classifier {
	return &Classifier{store: store, rater: rater, log: log}
}

// ClassifyOwner classifies the owner's unclassified active entities and
// returns how many were updated. Entities already tagged anything other
// than the default medium tier are skipped unless force is set.
// External-rater failures degrade to a skip; they never propagate.
func (c *Classifier) ClassifyOwner(ctx context.Context, ownerID string, force bool) (int, error) {
	entities, err := c.store.ListEntities(ctx, storage.EntityFilter{
		OwnerID: ownerID,
		Status:  types.StatusActive,
	})
	if err != nil {
		return 0, err
	}

	classified := 0
	for i := range entities {
		e := &entities[i]
		if !force && e.Importance != "" && e.Importance != types.ImportanceMedium {
			continue
		}

		tier, score, ok := HeuristicImportance(e)
		if !ok {
			if c.rater == nil {
				continue
			}
			result, err := c.rater.RateImportance(ctx, llm.RateRequest{
				Name:         e.Name,
				Kind:         string(e.Kind),
				Relationship: e.Relationship,
				MentionCount: e.MentionCount,
				ContextNotes: e.ContextNotes,
			})
			if err != nil {
				c.log.Warnw("importance rating failed, skipping entity",
					"entity", e.Name, "error", err)
				continue
			}
			tier = types.ImportanceTier(result.Importance)
			score = result.ImportanceScore
			if !tier.Valid() {
				c.log.Warnw("rater returned unknown tier, skipping entity",
					"entity", e.Name, "tier", result.Importance)
				continue
			}
		}

		if tier == e.Importance && score == e.ImportanceScore {
			continue
		}
		e.Importance = tier
		e.ImportanceScore = score
		if err := c.store.UpdateEntity(ctx, e); err != nil {
			c.log.Warnw("failed to persist importance", "entity", e.Name, "error", err)
			continue
		}
		classified++
	}
	return classified, nil
}
