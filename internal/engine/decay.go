package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	// DecayCycle is the minimum interval between decay passes for a
	// single entity, tracked via last_decay_at.
	DecayCycle = 7 * 24 * time.Hour

	// ArchiveThreshold is the importance_score below which a decayed
	// entity is archived.
	ArchiveThreshold = 0.1
)

// gracePeriod returns how long after the last mention decay is held off
// for a tier. The boolean is false for tiers that never decay.
func gracePeriod(tier types.ImportanceTier) (time.Duration, bool) {
	switch tier {
	case types.ImportanceCritical:
		return 0, false
	case types.ImportanceHigh:
		return 90 * 24 * time.Hour, true
	case types.ImportanceMedium:
		return 30 * 24 * time.Hour, true
	case types.ImportanceLow:
		return 14 * 24 * time.Hour, true
	case types.ImportanceTrivial:
		return 7 * 24 * time.Hour, true
	default:
		// Unknown tiers decay like medium.
		return 30 * 24 * time.Hour, true
	}
}

// decayIncrement returns how much importance_score drops per decay cycle
// for a tier.
func decayIncrement(tier types.ImportanceTier) float64 {
	switch tier {
	case types.ImportanceCritical:
		return 0
	case types.ImportanceHigh:
		return 0.05
	case types.ImportanceMedium:
		return 0.10
	case types.ImportanceLow:
		return 0.15
	case types.ImportanceTrivial:
		return 0.20
	default:
		return 0.10
	}
}

// DecayResult summarises one decay pass.
type DecayResult struct {
	Examined int `json:"examined"`
	Decayed  int `json:"decayed"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
}

// DecayScheduler reduces importance scores for entities not recently
// mentioned, archiving those that fall below the threshold. Passes are
// idempotent: the per-entity cycle window makes a back-to-back rerun a
// no-op, and the conditional store update means concurrent passes on the
// same entity cannot double-decay it.
type DecayScheduler struct {
	store storage.Store
	log   *zap.SugaredLogger
}

// NewDecayScheduler creates a decay scheduler.
func NewDecayScheduler(store storage.Store, log *zap.SugaredLogger) *DecayScheduler {
	return &DecayScheduler{store: store, log: log}
}

// Run performs one decay pass over the owner's active entities at the
// given instant. Critical entities never decay; dismissed, superseded,
// and archived entities are never touched (the pass only reads active
// rows, and the conditional update re-checks status).
func (d *DecayScheduler) Run(ctx context.Context, ownerID string, now time.Time) (DecayResult, error) {
	var result DecayResult

	entities, err := d.store.ListEntities(ctx, storage.EntityFilter{
		OwnerID: ownerID,
		Status:  types.StatusActive,
	})
	if err != nil {
		return result, err
	}

	cycleFloor := now.Add(-DecayCycle)

	for i := range entities {
		e := &entities[i]
		result.Examined++

		if e.Importance == types.ImportanceCritical {
			result.Skipped++
			continue
		}
		if e.LastDecayAt != nil && e.LastDecayAt.After(cycleFloor) {
			// Cycle window not yet elapsed.
			result.Skipped++
			continue
		}

		grace, decays := gracePeriod(e.Importance)
		if !decays {
			result.Skipped++
			continue
		}

		if now.Sub(e.LastMentionedAt) <= grace {
			// Fresh enough: refresh last_decay_at without a score change so
			// the freshness check is re-run one cycle from now.
			if _, err := d.store.ApplyDecay(ctx, e.ID, e.ImportanceScore, types.StatusActive, now, cycleFloor); err != nil {
				d.log.Warnw("failed to refresh decay window", "entity", e.Name, "error", err)
			}
			result.Skipped++
			continue
		}

		score := e.ImportanceScore - decayIncrement(e.Importance)
		if score < 0 {
			score = 0
		}

		status := types.StatusActive
		if score < ArchiveThreshold {
			status = types.StatusArchived
		}

		applied, err := d.store.ApplyDecay(ctx, e.ID, score, status, now, cycleFloor)
		if err != nil {
			d.log.Warnw("failed to apply decay", "entity", e.Name, "error", err)
			continue
		}
		if !applied {
			// A concurrent pass decayed this entity first.
			result.Skipped++
			continue
		}

		if status == types.StatusArchived {
			result.Archived++
		} else {
			result.Decayed++
		}
	}
	return result, nil
}

// RefreshEntity counteracts decay after a fresh mention: the score is
// restored to at least the tier's base score (never lowered) and the
// decay clock restarts. Dismissed and superseded entities are left
// untouched.
func (d *DecayScheduler) RefreshEntity(ctx context.Context, id string, now time.Time) error {
	e, err := d.store.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != types.StatusActive && e.Status != types.StatusArchived {
		return nil
	}

	base := e.Importance.BaseScore()
	if e.ImportanceScore < base {
		e.ImportanceScore = base
	}
	t := now
	e.LastDecayAt = &t
	// A fresh mention un-archives; it never un-dismisses.
	if e.Status == types.StatusArchived {
		e.Status = types.StatusActive
	}
	return d.store.UpdateEntity(ctx, e)
}
