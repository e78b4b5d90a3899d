package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Superseder turns detected state changes into new entity versions.
// Supersession is create-then-retire: the successor record is written
// first, then the prior record is retired with a conditional update. If
// the retire loses a race the read path still prefers the newest active
// record, so a stale duplicate is harmless until the next pass cleans
// it up.
type Superseder struct {
	store storage.Store
	log   *zap.SugaredLogger
}

func NewSuperseder(store storage.Store, log *zap.SugaredLogger) *Superseder {
	return &Superseder{store: store, log: log}
}

// Supersede records a state change against the named entity: it creates
// a fresh version carrying the entity's identity forward, links it into
// the chain, and retires the prior record. The triggering text seeds
// the new version's context. Returns the new version.
//
// Additive changes (status updates) should never reach this method; the
// caller filters on ChangeType.Supersedes().
func (s *Superseder) Supersede(ctx context.Context, ownerID string, change ChangeCandidate, now time.Time) (*types.Entity, error) {
	prior, err := s.store.ActiveEntityByName(ctx, ownerID, change.EntityName)
	if err != nil {
		return nil, err
	}

	successor := &types.Entity{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    prior.Name,

		// Identity fields carry forward; mutable state starts fresh.
		Kind:         prior.Kind,
		Relationship: prior.Relationship,
		Confirmed:    prior.Confirmed,

		MentionCount:     1,
		FirstMentionedAt: prior.FirstMentionedAt,
		LastMentionedAt:  now,

		Importance:      prior.Importance,
		ImportanceScore: prior.Importance.BaseScore(),

		Status:       types.StatusActive,
		SupersedesID: prior.ID,
	}
	successor.AppendContextNote(change.MatchedText)

	if err := s.store.CreateEntity(ctx, successor); err != nil {
		return nil, err
	}

	retired, err := s.store.RetireEntity(ctx, prior.ID, successor.ID, now)
	if err != nil {
		return nil, err
	}
	if !retired {
		// A concurrent supersession got there first. The newest active
		// record wins on reads either way.
		s.log.Debugw("retire lost race, relying on read-side tiebreak",
			"entity", prior.Name, "prior_id", prior.ID)
	}

	s.log.Infow("entity superseded",
		"entity", prior.Name,
		"change", change.Type,
		"new_value", change.NewValue)
	return successor, nil
}
