package storage

import (
	"errors"

	"github.com/scrypster/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// EntityFilter narrows ListEntities results. Zero-value fields are ignored.
type EntityFilter struct {
	// OwnerID scopes the query to one owner. Required.
	OwnerID string

	// Status filters by lifecycle status ("" = any).
	Status types.EntityStatus

	// Kind filters by entity kind ("" = any).
	Kind types.EntityKind

	// NameQuery is a case-insensitive substring match on name.
	NameQuery string

	// MinMentions drops entities with fewer mentions.
	MinMentions int

	// Limit caps the number of results (0 = no cap).
	Limit int
}
