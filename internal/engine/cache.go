package engine

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// defaultCacheOwners bounds how many owners' entity indexes stay warm.
const defaultCacheOwners = 256

// OwnerCache is a read-through cache of each owner's active entities,
// used by the ingestion hot path to avoid a store round-trip per note.
// Any write that changes an owner's entity set must call Invalidate.
type OwnerCache struct {
	store storage.Store
	cache *lru.Cache[string, []types.Entity]
}

// NewOwnerCache creates an owner cache over the given store.
func NewOwnerCache(store storage.Store) (*OwnerCache, error) {
	c, err := lru.New[string, []types.Entity](defaultCacheOwners)
	if err != nil {
		return nil, err
	}
	return &OwnerCache{store: store, cache: c}, nil
}

// Known returns the owner's active entities, loading and caching them on
// first access.
func (oc *OwnerCache) Known(ctx context.Context, ownerID string) ([]types.Entity, error) {
	if cached, ok := oc.cache.Get(ownerID); ok {
		return cached, nil
	}

	entities, err := oc.store.ListEntities(ctx, storage.EntityFilter{
		OwnerID: ownerID,
		Status:  types.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	oc.cache.Add(ownerID, entities)
	return entities, nil
}

// Invalidate drops the cached index for an owner.
func (oc *OwnerCache) Invalidate(ownerID string) {
	oc.cache.Remove(ownerID)
}
