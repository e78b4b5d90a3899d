package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaintenanceResult summarises one full maintenance run for an owner.
type MaintenanceResult struct {
	OwnerID string `json:"owner_id"`

	Decay             DecayResult       `json:"decay"`
	InferencesExpired int               `json:"inferences_expired"`
	Classified        int               `json:"classified"`
	Consolidation     ConsolidateResult `json:"consolidation"`
	Inference         InferenceResult   `json:"inference"`

	Duration time.Duration `json:"duration"`
}

// RunMemoryMaintenance executes the periodic passes for one owner in
// their fixed order: decay first (so stale entities stop influencing
// later stages), then inference cleanup, importance classification,
// consolidation, and finally fresh inference generation over the
// now-current graph. The whole run is idempotent: re-running
// immediately produces no further writes.
func (e *Engine) RunMemoryMaintenance(ctx context.Context, ownerID string) (*MaintenanceResult, error) {
	start := time.Now()
	now := start.UTC()
	result := &MaintenanceResult{OwnerID: ownerID}

	var err error
	if result.Decay, err = e.decay.Run(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if result.InferencesExpired, err = e.inference.Cleanup(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if result.Classified, err = e.classifier.ClassifyOwner(ctx, ownerID, false); err != nil {
		return nil, err
	}
	if result.Consolidation, err = e.consolidator.Run(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if result.Inference, err = e.inference.Generate(ctx, ownerID, now); err != nil {
		return nil, err
	}

	e.cache.Invalidate(ownerID)
	result.Duration = time.Since(start)
	e.emit("maintenance.completed", ownerID, result.Duration.String())
	e.log.Infow("maintenance completed",
		"owner", ownerID,
		"decayed", result.Decay.Decayed,
		"archived", result.Decay.Archived,
		"inferences_expired", result.InferencesExpired,
		"classified", result.Classified,
		"consolidated", result.Consolidation.Consolidated,
		"inferences_stored", result.Inference.Stored,
		"duration", result.Duration)
	return result, nil
}

// maintenanceConcurrency bounds how many owners are maintained at once.
const maintenanceConcurrency = 4

// RunMaintenanceForAllOwners runs maintenance for every known owner
// with bounded concurrency. Per-owner failures are logged and do not
// stop the sweep; the first error is reported after all owners finish.
func (e *Engine) RunMaintenanceForAllOwners(ctx context.Context) ([]MaintenanceResult, error) {
	owners, err := e.store.Owners(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]MaintenanceResult, len(owners))
	var (
		mu       sync.Mutex
		firstErr error
	)
	var g errgroup.Group
	g.SetLimit(maintenanceConcurrency)

	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			r, err := e.RunMemoryMaintenance(ctx, owner)
			if err != nil {
				e.log.Errorw("maintenance failed for owner", "owner", owner, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			results[i] = *r
			return nil
		})
	}
	_ = g.Wait()
	return results, firstErr
}
