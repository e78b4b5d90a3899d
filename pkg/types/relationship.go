package types

import "time"

// RelationshipStatus is the lifecycle state of a relationship record.
type RelationshipStatus string

const (
	RelationshipActive     RelationshipStatus = "active"
	RelationshipSuperseded RelationshipStatus = "superseded"
)

// Relationship links two named entities through a predicate
// (e.g. "Sarah" works_at "Acme"). At most one active relationship exists
// per (owner, subject, predicate family); a changed predicate for the same
// subject supersedes the previous record rather than overwriting it.
type Relationship struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	SubjectName string `json:"subject_name"`
	Predicate   string `json:"predicate"`
	ObjectName  string `json:"object_name"`

	// Entity IDs are resolved opportunistically; either may be empty when
	// the named party has no entity record yet.
	SubjectEntityID string `json:"subject_entity_id,omitempty"`
	ObjectEntityID  string `json:"object_entity_id,omitempty"`

	Confidence float64            `json:"confidence"`
	Status     RelationshipStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PredicateFamily maps a predicate to its supersession family: two
// relationships for the same subject in the same family are mutually
// exclusive (a person works at one place, lives in one city), so a new
// one retires the old.
func PredicateFamily(predicate string) string {
	switch predicate {
	case "works_at", "employed_by", "ceo_of", "founder_of", "cofounder_of", "works_on":
		return "employment"
	case "lives_in", "based_in", "moved_to":
		return "location"
	case "married_to", "partner_of", "dating", "engaged_to":
		return "partner"
	default:
		return predicate
	}
}
