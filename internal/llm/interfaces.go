// Package llm provides the external text-understanding collaborators:
// entity extraction, summary compression, cross-entity reasoning, and
// importance rating. Providers implement the low-level TextGenerator
// interface; the Collaborator type layers prompts, rate limiting, and
// response parsing on top. Nothing in the engine depends on a
// collaborator responding; every call site has a local fallback.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All collaborator prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// ExtractedEntity is one entity tuple from the text-understanding
// collaborator.
type ExtractedEntity struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Relationship string `json:"relationship,omitempty"`
	Context      string `json:"context,omitempty"`
	Sentiment    string `json:"sentiment,omitempty"`
}

// ExtractedRelationship is one subject-predicate-object tuple.
type ExtractedRelationship struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// DetectedChange is a state change the collaborator flagged explicitly.
type DetectedChange struct {
	EntityName  string `json:"entity_name"`
	ChangeType  string `json:"change_type"`
	Description string `json:"description,omitempty"`
	NewValue    string `json:"new_value,omitempty"`
}

// UnderstandRequest asks the collaborator to extract structure from text.
type UnderstandRequest struct {
	Text          string
	KnownEntities []string
}

// UnderstandResult is the structured extraction response.
type UnderstandResult struct {
	Entities        []ExtractedEntity       `json:"entities"`
	Relationships   []ExtractedRelationship `json:"relationships"`
	ChangesDetected []DetectedChange        `json:"changes_detected"`
}

// Understander extracts entities, relationships, and detected changes
// from raw text.
type Understander interface {
	Understand(ctx context.Context, req UnderstandRequest) (*UnderstandResult, error)
}

// CompressRequest asks for a tight human-readable entity summary.
type CompressRequest struct {
	EntityName    string
	EntityKind    string
	ContextNotes  []string
	Relationships []string
}

// Compressor condenses accumulated entity context into a short summary.
type Compressor interface {
	Compress(ctx context.Context, req CompressRequest) (string, error)
}

// EntityDigest is the compact entity view handed to the reasoner.
type EntityDigest struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Relationship string `json:"relationship,omitempty"`
	Summary      string `json:"summary,omitempty"`
	MentionCount int    `json:"mention_count"`
	Importance   string `json:"importance,omitempty"`
}

// ReasonRequest carries the reasoning context: top entities, their active
// relationships, and the owner's most recent notes.
type ReasonRequest struct {
	Entities      []EntityDigest
	Relationships []string
	RecentNotes   []string
}

// ProposedInference is one higher-order fact proposed by the reasoner.
type ProposedInference struct {
	Type       string   `json:"type"`
	Entities   []string `json:"entities"`
	Inference  string   `json:"inference"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Reasoner proposes cross-entity inferences with confidence.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) ([]ProposedInference, error)
}

// RateRequest asks the collaborator to classify an entity's importance.
type RateRequest struct {
	Name         string
	Kind         string
	Relationship string
	MentionCount int
	ContextNotes []string
}

// RateResult is the classifier's verdict.
type RateResult struct {
	Importance      string  `json:"importance"`
	ImportanceScore float64 `json:"importance_score"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// ImportanceRater classifies entity importance when local heuristics
// cannot.
type ImportanceRater interface {
	RateImportance(ctx context.Context, req RateRequest) (*RateResult, error)
}
