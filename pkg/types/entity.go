package types

import "time"

// EntityKind categorizes what a tracked entity is.
type EntityKind string

const (
	KindPerson       EntityKind = "person"
	KindPlace        EntityKind = "place"
	KindProject      EntityKind = "project"
	KindPet          EntityKind = "pet"
	KindOrganization EntityKind = "organization"
	KindOther        EntityKind = "other"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindPerson, KindPlace, KindProject, KindPet, KindOrganization, KindOther:
		return true
	}
	return false
}

// EntityStatus is the lifecycle state of an entity record.
type EntityStatus string

const (
	// StatusActive marks the current authoritative record for a name.
	StatusActive EntityStatus = "active"

	// StatusSuperseded marks a record that was retired in favor of a newer
	// version (see SupersededByID).
	StatusSuperseded EntityStatus = "superseded"

	// StatusArchived marks a record whose importance decayed below the
	// archive threshold. Archived entities are excluded from reads by default.
	StatusArchived EntityStatus = "archived"

	// StatusDismissed marks a record the user explicitly dismissed.
	// Dismissed entities are sticky: no automated job may mutate or
	// reactivate them. Only an explicit confirm action does.
	StatusDismissed EntityStatus = "dismissed"
)

// ImportanceTier is a qualitative importance level that drives decay
// grace periods and decay rates.
type ImportanceTier string

const (
	ImportanceCritical ImportanceTier = "critical"
	ImportanceHigh     ImportanceTier = "high"
	ImportanceMedium   ImportanceTier = "medium"
	ImportanceLow      ImportanceTier = "low"
	ImportanceTrivial  ImportanceTier = "trivial"
)

// BaseScore returns the floor importance_score for a tier. RefreshEntity
// restores a decayed entity to at least this value.
func (t ImportanceTier) BaseScore() float64 {
	switch t {
	case ImportanceCritical:
		return 1.0
	case ImportanceHigh:
		return 0.8
	case ImportanceMedium:
		return 0.5
	case ImportanceLow:
		return 0.3
	case ImportanceTrivial:
		return 0.1
	default:
		return 0.5
	}
}

// Valid reports whether t is one of the five known tiers.
func (t ImportanceTier) Valid() bool {
	switch t {
	case ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow, ImportanceTrivial:
		return true
	}
	return false
}

// MaxContextNotes bounds the context_notes list; older snippets are
// evicted FIFO once the cap is reached.
const MaxContextNotes = 10

// Entity is a named person/place/project/etc. tracked per owner.
// Versions of the same entity form a singly linked supersession chain via
// SupersedesID / SupersededByID; exactly one record per (owner, name) is
// active at a time, and reads prefer the most recently created active
// record to tolerate a partially applied supersession.
type Entity struct {
	ID      string     `json:"id"`
	OwnerID string     `json:"owner_id"`
	Name    string     `json:"name"`
	Kind    EntityKind `json:"kind"`

	// Relationship is a free-text descriptor of how the entity relates to
	// the owner (e.g. "cofounder", "works at Acme"). Confirmed is set when
	// the user validates it.
	Relationship string `json:"relationship,omitempty"`
	Confirmed    bool   `json:"confirmed"`

	MentionCount     int       `json:"mention_count"`
	FirstMentionedAt time.Time `json:"first_mentioned_at"`
	LastMentionedAt  time.Time `json:"last_mentioned_at"`

	// ContextNotes holds up to MaxContextNotes recent snippets giving
	// provenance for mentions, oldest first.
	ContextNotes []string `json:"context_notes,omitempty"`

	// Consolidation output.
	Summary            string     `json:"summary,omitempty"`
	Topics             []string   `json:"topics,omitempty"`
	LastConsolidatedAt *time.Time `json:"last_consolidated_at,omitempty"`

	Importance      ImportanceTier `json:"importance"`
	ImportanceScore float64        `json:"importance_score"`

	Status         EntityStatus `json:"status"`
	SupersedesID   string       `json:"supersedes_id,omitempty"`
	SupersededByID string       `json:"superseded_by_id,omitempty"`

	// LastDecayAt gates the decay cycle: at most one decay pass per entity
	// per cycle window.
	LastDecayAt *time.Time `json:"last_decay_at,omitempty"`

	// Embedding of the entity's consolidated text, for similarity search.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendContextNote appends a snippet to ContextNotes, evicting the oldest
// entries to stay within MaxContextNotes. Empty snippets are ignored.
func (e *Entity) AppendContextNote(note string) {
	if note == "" {
		return
	}
	e.ContextNotes = append(e.ContextNotes, note)
	if n := len(e.ContextNotes); n > MaxContextNotes {
		e.ContextNotes = e.ContextNotes[n-MaxContextNotes:]
	}
}
