// Package storage defines the persistence interfaces for the entity
// memory graph. Backends (sqlite, postgres) implement Store; the engine
// only ever talks to these interfaces.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// Store is the full persistence surface for entities, facts,
// relationships, inferences, and ingested notes.
//
// Concurrency contract: plain updates are last-writer-wins; the
// conditional operations (RetireEntity, ApplyDecay, RetireRelationship)
// are compare-and-swap so that exactly one of two racing writers
// observes success.
type Store interface {
	// --- entities ---

	// CreateEntity inserts a new entity row.
	CreateEntity(ctx context.Context, e *types.Entity) error

	// UpdateEntity overwrites the mutable fields of an existing entity.
	// Returns ErrNotFound if no row with e.ID exists.
	UpdateEntity(ctx context.Context, e *types.Entity) error

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// ListEntities retrieves entities matching the filter, most recently
	// mentioned first.
	ListEntities(ctx context.Context, f EntityFilter) ([]types.Entity, error)

	// ActiveEntityByName returns the authoritative record for a name:
	// the most recently created active entity whose name matches
	// case-insensitively. This read rule tolerates a supersession whose
	// retire step has not landed yet. Returns ErrNotFound if no active
	// record exists.
	ActiveEntityByName(ctx context.Context, ownerID, name string) (*types.Entity, error)

	// EntitiesByName returns every record for a name regardless of
	// status, newest first. Used to detect dismissed records before an
	// automated write.
	EntitiesByName(ctx context.Context, ownerID, name string) ([]types.Entity, error)

	// RetireEntity marks an active entity superseded and links it to its
	// replacement. The update is conditional on status still being
	// active; the boolean reports whether this caller won.
	RetireEntity(ctx context.Context, id, supersededByID string, now time.Time) (bool, error)

	// SetEntityStatus sets the lifecycle status unconditionally (used by
	// the explicit dismiss/confirm user actions).
	SetEntityStatus(ctx context.Context, id string, status types.EntityStatus, now time.Time) error

	// ApplyDecay writes a decayed score (and possibly archived status)
	// conditional on the entity still being active and its last_decay_at
	// being at or before cycleFloor. The boolean reports whether the
	// write was applied; false means another decay pass got there first.
	ApplyDecay(ctx context.Context, id string, score float64, status types.EntityStatus, now, cycleFloor time.Time) (bool, error)

	// EntityChain returns the full supersession history for an entity,
	// oldest version first, by walking supersedes_id/superseded_by_id
	// links. Bounded to guard against cyclic data.
	EntityChain(ctx context.Context, id string) ([]*types.Entity, error)

	// Owners lists the distinct owner IDs present in the entity table.
	Owners(ctx context.Context) ([]string, error)

	// --- facts ---

	CreateFact(ctx context.Context, f *types.Fact) error

	// FactsForEntity returns facts for an entity, newest first (the
	// first fact per predicate is the authoritative one).
	FactsForEntity(ctx context.Context, entityID string) ([]types.Fact, error)

	// --- relationships ---

	CreateRelationship(ctx context.Context, r *types.Relationship) error

	// UpdateRelationship overwrites a relationship's mutable fields.
	// Returns ErrNotFound if no row with r.ID exists.
	UpdateRelationship(ctx context.Context, r *types.Relationship) error

	// ActiveRelationships returns all active relationships for an owner.
	ActiveRelationships(ctx context.Context, ownerID string) ([]types.Relationship, error)

	// ActiveRelationshipForSubject finds the active relationship for a
	// subject within a predicate family. Returns ErrNotFound if none.
	ActiveRelationshipForSubject(ctx context.Context, ownerID, subjectName, family string) (*types.Relationship, error)

	// RetireRelationship marks a relationship superseded, conditional on
	// it still being active.
	RetireRelationship(ctx context.Context, id string, now time.Time) (bool, error)

	// --- inferences ---

	CreateInference(ctx context.Context, inf *types.Inference) error

	// ActiveInferences returns unexpired inferences for an owner, newest
	// first.
	ActiveInferences(ctx context.Context, ownerID string) ([]types.Inference, error)

	// ExpireInferences marks active inferences whose expiry has passed as
	// expired and returns how many were affected. Soft state change only.
	ExpireInferences(ctx context.Context, ownerID string, now time.Time) (int, error)

	// --- notes ---

	CreateNote(ctx context.Context, n *types.Note) error

	// RecentNotes returns the owner's most recent notes, newest first.
	RecentNotes(ctx context.Context, ownerID string, limit int) ([]types.Note, error)

	Close() error
}

// EmbeddingProvider persists vector embeddings for entity text so the
// surrounding application can do similarity search. Opaque to the engine
// beyond "store updated embedding".
type EmbeddingProvider interface {
	StoreEntityEmbedding(ctx context.Context, entityID string, embedding []float32, model string) error
}
