package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	// consolidationMinMentions is how many mentions an entity needs
	// before its context is worth consolidating.
	consolidationMinMentions = 3

	// consolidationInterval is the minimum age of the previous
	// consolidation before another one runs.
	consolidationInterval = 24 * time.Hour

	// maxTopics caps the topic tags kept per entity.
	maxTopics = 5
)

// topicKeywords maps topic tags to trigger words matched against the
// entity's accumulated context.
var topicKeywords = map[string][]string{
	"startup":     {"startup", "funding", "investor", "pitch", "seed round"},
	"engineering": {"code", "engineering", "deploy", "bug", "software", "programming"},
	"design":      {"design", "ux", "ui", "mockup", "prototype"},
	"business":    {"business", "revenue", "client", "contract", "sales", "deal"},
	"health":      {"doctor", "health", "gym", "sick", "workout", "therapy"},
	"travel":      {"trip", "travel", "flight", "vacation", "visiting"},
	"family":      {"family", "kids", "parents", "wedding", "birthday"},
	"work":        {"work", "meeting", "project", "deadline", "office"},
	"school":      {"school", "class", "degree", "studying", "exam"},
	"finance":     {"money", "invest", "budget", "savings", "mortgage"},
}

// ConsolidateResult summarises one consolidation pass.
type ConsolidateResult struct {
	Examined     int `json:"examined"`
	Consolidated int `json:"consolidated"`
}

// Consolidator compresses an entity's accumulated context notes into a
// short summary and topic tags. Summaries come from the compression
// collaborator when one is configured and responding; otherwise a local
// template keeps the pipeline moving.
type Consolidator struct {
	store      storage.Store
	compressor llm.Compressor
	embedder   llm.EmbeddingGenerator
	embeddings storage.EmbeddingProvider
	log        *zap.SugaredLogger
}

// NewConsolidator creates a consolidator. compressor, embedder, and
// embeddings may each be nil; missing pieces degrade to local behavior.
func NewConsolidator(store storage.Store, compressor llm.Compressor, embedder llm.EmbeddingGenerator, embeddings storage.EmbeddingProvider, log *zap.SugaredLogger) *Consolidator {
	return &Consolidator{
		store:      store,
		compressor: compressor,
		embedder:   embedder,
		embeddings: embeddings,
		log:        log,
	}
}

// Run consolidates every eligible entity for the owner: at least
// consolidationMinMentions mentions and no consolidation within the last
// consolidationInterval.
func (c *Consolidator) Run(ctx context.Context, ownerID string, now time.Time) (ConsolidateResult, error) {
	var result ConsolidateResult

	entities, err := c.store.ListEntities(ctx, storage.EntityFilter{
		OwnerID:     ownerID,
		Status:      types.StatusActive,
		MinMentions: consolidationMinMentions,
	})
	if err != nil {
		return result, err
	}

	for i := range entities {
		e := &entities[i]
		result.Examined++

		if e.LastConsolidatedAt != nil && now.Sub(*e.LastConsolidatedAt) < consolidationInterval {
			continue
		}
		if err := c.consolidate(ctx, e, now); err != nil {
			c.log.Warnw("consolidation failed", "entity", e.Name, "error", err)
			continue
		}
		result.Consolidated++
	}
	return result, nil
}

func (c *Consolidator) consolidate(ctx context.Context, e *types.Entity, now time.Time) error {
	e.Topics = extractTopics(strings.Join(e.ContextNotes, " "))

	summary := ""
	if c.compressor != nil {
		rels, err := c.store.ActiveRelationships(ctx, e.OwnerID)
		var relStrings []string
		if err == nil {
			for _, r := range rels {
				if strings.EqualFold(r.SubjectName, e.Name) || strings.EqualFold(r.ObjectName, e.Name) {
					relStrings = append(relStrings, fmt.Sprintf("%s %s %s", r.SubjectName, r.Predicate, r.ObjectName))
				}
			}
		}
		compressed, err := c.compressor.Compress(ctx, llm.CompressRequest{
			EntityName:    e.Name,
			EntityKind:    string(e.Kind),
			ContextNotes:  e.ContextNotes,
			Relationships: relStrings,
		})
		if err != nil {
			c.log.Debugw("compression collaborator unavailable, using local summary",
				"entity", e.Name, "error", err)
		} else {
			summary = compressed
		}
	}
	if summary == "" {
		summary = localSummary(e)
	}

	e.Summary = summary
	t := now
	e.LastConsolidatedAt = &t
	if err := c.store.UpdateEntity(ctx, e); err != nil {
		return err
	}

	// Re-index for similarity search. Best effort: a failed embedding
	// never rolls back the consolidation itself.
	if c.embedder != nil && c.embeddings != nil {
		vec, err := c.embedder.Embed(ctx, e.Name+": "+summary)
		if err != nil {
			c.log.Debugw("embedding generation failed", "entity", e.Name, "error", err)
			return nil
		}
		if err := c.embeddings.StoreEntityEmbedding(ctx, e.ID, vec, c.embedder.GetModel()); err != nil {
			c.log.Warnw("failed to store embedding", "entity", e.Name, "error", err)
		}
	}
	return nil
}

// extractTopics matches context text against the topic-keyword table and
// returns up to maxTopics tags, in stable order.
func extractTopics(text string) []string {
	lower := strings.ToLower(text)

	// Stable iteration: check topics in a fixed order so repeated
	// consolidations produce identical tags.
	ordered := []string{"startup", "engineering", "design", "business", "health",
		"travel", "family", "work", "school", "finance"}

	var topics []string
	for _, topic := range ordered {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
		if len(topics) >= maxTopics {
			break
		}
	}
	return topics
}

// localSummary builds the fallback template summary: name, relationship,
// mention count, and the last few context snippets.
func localSummary(e *types.Entity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Relationship != "" {
		fmt.Fprintf(&b, " (%s)", e.Relationship)
	}
	fmt.Fprintf(&b, ", mentioned %d times.", e.MentionCount)

	notes := e.ContextNotes
	if len(notes) > 3 {
		notes = notes[len(notes)-3:]
	}
	if len(notes) > 0 {
		b.WriteString(" Recently: ")
		b.WriteString(strings.Join(notes, "; "))
	}
	return b.String()
}
