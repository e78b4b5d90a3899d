package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// CreateFact inserts a fact row.
func (s *Store) CreateFact(ctx context.Context, f *types.Fact) error {
	if f == nil || f.ID == "" || f.EntityID == "" {
		return fmt.Errorf("%w: fact ID and entity ID are required", storage.ErrInvalidInput)
	}
	if f.Predicate == "" || f.ObjectText == "" {
		return fmt.Errorf("%w: fact predicate and object are required", storage.ErrInvalidInput)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, owner_id, entity_id, predicate, object_text, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.OwnerID, f.EntityID, f.Predicate, f.ObjectText, f.Confidence, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// FactsForEntity returns facts for an entity, newest first.
func (s *Store) FactsForEntity(ctx context.Context, entityID string) ([]types.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, entity_id, predicate, object_text, confidence, created_at
		FROM facts WHERE entity_id = $1
		ORDER BY created_at DESC, id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var out []types.Fact
	for rows.Next() {
		var f types.Fact
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.EntityID, &f.Predicate,
			&f.ObjectText, &f.Confidence, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const relationshipColumns = `id, owner_id, subject_name, predicate, predicate_family,
	object_name, subject_entity_id, object_entity_id, confidence, status,
	created_at, updated_at`

// CreateRelationship inserts a relationship row.
func (s *Store) CreateRelationship(ctx context.Context, r *types.Relationship) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	if r.SubjectName == "" || r.Predicate == "" {
		return fmt.Errorf("%w: subject and predicate are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.Status == "" {
		r.Status = types.RelationshipActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, owner_id, subject_name, predicate, predicate_family,
			object_name, subject_entity_id, object_entity_id, confidence, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.OwnerID, r.SubjectName, r.Predicate, types.PredicateFamily(r.Predicate),
		r.ObjectName, nullString(r.SubjectEntityID), nullString(r.ObjectEntityID),
		r.Confidence, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}

// UpdateRelationship overwrites a relationship's mutable fields.
func (s *Store) UpdateRelationship(ctx context.Context, r *types.Relationship) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE relationships
		SET subject_entity_id = $1, object_entity_id = $2, confidence = $3,
			status = $4, updated_at = $5
		WHERE id = $6`,
		nullString(r.SubjectEntityID), nullString(r.ObjectEntityID),
		r.Confidence, r.Status, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: relationship %s", storage.ErrNotFound, r.ID)
	}
	return nil
}

func scanRelationship(row interface{ Scan(...interface{}) error }) (*types.Relationship, error) {
	var (
		r                   types.Relationship
		family              string
		subjectID, objectID sql.NullString
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.SubjectName, &r.Predicate, &family,
		&r.ObjectName, &subjectID, &objectID, &r.Confidence, &r.Status,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.SubjectEntityID = subjectID.String
	r.ObjectEntityID = objectID.String
	return &r, nil
}

// ActiveRelationships returns all active relationships for an owner.
func (s *Store) ActiveRelationships(ctx context.Context, ownerID string) ([]types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ActiveRelationshipForSubject finds the active relationship for a subject
// within a predicate family.
func (s *Store) ActiveRelationshipForSubject(ctx context.Context, ownerID, subjectName, family string) (*types.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE owner_id = $1 AND LOWER(subject_name) = LOWER($2)
		  AND predicate_family = $3 AND status = 'active'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, ownerID, subjectName, family)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve relationship: %w", err)
	}
	return r, nil
}

// RetireRelationship conditionally marks a relationship superseded.
func (s *Store) RetireRelationship(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE relationships SET status = 'superseded', updated_at = $1
		WHERE id = $2 AND status = 'active'`, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to retire relationship: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateInference inserts an inference row.
func (s *Store) CreateInference(ctx context.Context, inf *types.Inference) error {
	if inf == nil || inf.ID == "" || inf.Text == "" {
		return fmt.Errorf("%w: inference ID and text are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if inf.CreatedAt.IsZero() {
		inf.CreatedAt = now
	}
	if inf.ExpiresAt.IsZero() {
		inf.ExpiresAt = now.Add(types.InferenceTTL)
	}
	if inf.Status == "" {
		inf.Status = types.InferenceActive
	}

	entitiesJSON, err := marshalJSON(inf.SubjectEntities)
	if err != nil {
		return fmt.Errorf("failed to marshal subject_entities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inferences (id, owner_id, inference_type, subject_entities, text,
			confidence, supporting_evidence, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inf.ID, inf.OwnerID, inf.Type, entitiesJSON, inf.Text,
		inf.Confidence, inf.SupportingEvidence, inf.Status, inf.ExpiresAt, inf.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert inference: %w", err)
	}
	return nil
}

// ActiveInferences returns unexpired inferences for an owner, newest first.
func (s *Store) ActiveInferences(ctx context.Context, ownerID string) ([]types.Inference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, inference_type, subject_entities, text, confidence,
			supporting_evidence, status, expires_at, created_at
		FROM inferences
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inferences: %w", err)
	}
	defer rows.Close()

	var out []types.Inference
	for rows.Next() {
		var (
			inf      types.Inference
			entities sql.NullString
		)
		if err := rows.Scan(&inf.ID, &inf.OwnerID, &inf.Type, &entities, &inf.Text,
			&inf.Confidence, &inf.SupportingEvidence, &inf.Status,
			&inf.ExpiresAt, &inf.CreatedAt); err != nil {
			return nil, err
		}
		if entities.Valid {
			_ = unmarshalJSONStrings(entities.String, &inf.SubjectEntities)
		}
		out = append(out, inf)
	}
	return out, rows.Err()
}

// ExpireInferences marks stale active inferences expired.
func (s *Store) ExpireInferences(ctx context.Context, ownerID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inferences SET status = 'expired'
		WHERE owner_id = $1 AND status = 'active' AND expires_at <= $2`,
		ownerID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire inferences: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CreateNote records an ingested note.
func (s *Store) CreateNote(ctx context.Context, n *types.Note) error {
	if n == nil || n.ID == "" || n.Text == "" {
		return fmt.Errorf("%w: note ID and text are required", storage.ErrInvalidInput)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, text, source_type, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.OwnerID, n.Text, n.SourceType, n.SourceID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// RecentNotes returns the owner's most recent notes, newest first.
func (s *Store) RecentNotes(ctx context.Context, ownerID string, limit int) ([]types.Note, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, text, source_type, source_id, created_at
		FROM notes WHERE owner_id = $1
		ORDER BY created_at DESC, id LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var out []types.Note
	for rows.Next() {
		var n types.Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Text, &n.SourceType, &n.SourceID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
