package types

import "time"

// Fact is a subject-predicate-object triple attached to an entity.
// Multiple facts may share (entity_id, predicate); the most recent by
// created_at is authoritative for display, older rows are kept for audit.
type Fact struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	EntityID   string    `json:"entity_id"`
	Predicate  string    `json:"predicate"`
	ObjectText string    `json:"object_text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Note is an ingested piece of raw text. Recent notes feed the inference
// engine's reasoning context.
type Note struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Text       string    `json:"text"`
	SourceType string    `json:"source_type,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
