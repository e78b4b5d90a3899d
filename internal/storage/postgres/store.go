// Package postgres implements the storage.Store interface on PostgreSQL
// via lib/pq, with optional pgvector support for entity embeddings.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db                *sql.DB
	logf              func(format string, args ...interface{})
	pgvectorAvailable bool
}

// NewStore connects to PostgreSQL, applies the schema, and probes for the
// pgvector extension. Vector support is optional: without it embeddings
// are still persisted as JSONB, just not indexable by cosine distance.
// logf receives driver-level warnings; pass nil to discard them.
func NewStore(dsn string, logf func(format string, args ...interface{})) (*Store, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, logf: logf}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		logf("postgres: pgvector extension not available (vector search disabled): %v", err)
	} else {
		s.pgvectorAvailable = true
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if s.pgvectorAvailable {
		if _, err := db.Exec(VectorMigration); err != nil {
			logf("postgres: failed to apply pgvector migration (vector search disabled): %v", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
}

// GetDB exposes the underlying connection for the embedding provider.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// PgvectorAvailable reports whether the pgvector extension is active.
func (s *Store) PgvectorAvailable() bool {
	return s.pgvectorAvailable
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []float32:
		if len(t) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalJSONStrings(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

const entityColumns = `id, owner_id, name, kind, relationship, confirmed,
	mention_count, first_mentioned_at, last_mentioned_at, context_notes,
	summary, topics, last_consolidated_at, importance, importance_score,
	status, supersedes_id, superseded_by_id, last_decay_at,
	embedding, embedding_model, created_at, updated_at`

// CreateEntity inserts a new entity row.
func (s *Store) CreateEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if e.OwnerID == "" || e.Name == "" {
		return fmt.Errorf("%w: owner ID and name are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Status == "" {
		e.Status = types.StatusActive
	}
	if e.Importance == "" {
		e.Importance = types.ImportanceMedium
		e.ImportanceScore = types.ImportanceMedium.BaseScore()
	}

	notesJSON, err := marshalJSON(e.ContextNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal context_notes: %w", err)
	}
	topicsJSON, err := marshalJSON(e.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	embJSON, err := marshalJSON(e.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		e.ID, e.OwnerID, e.Name, e.Kind, e.Relationship, e.Confirmed,
		e.MentionCount, e.FirstMentionedAt, e.LastMentionedAt, notesJSON,
		e.Summary, topicsJSON, nullTimePtr(e.LastConsolidatedAt),
		e.Importance, e.ImportanceScore,
		e.Status, nullString(e.SupersedesID), nullString(e.SupersededByID),
		nullTimePtr(e.LastDecayAt),
		embJSON, e.EmbeddingModel, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

// UpdateEntity overwrites the mutable fields of an existing entity.
func (s *Store) UpdateEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	e.UpdatedAt = time.Now().UTC()

	notesJSON, err := marshalJSON(e.ContextNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal context_notes: %w", err)
	}
	topicsJSON, err := marshalJSON(e.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	embJSON, err := marshalJSON(e.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			name = $1, kind = $2, relationship = $3, confirmed = $4,
			mention_count = $5, first_mentioned_at = $6, last_mentioned_at = $7,
			context_notes = $8, summary = $9, topics = $10, last_consolidated_at = $11,
			importance = $12, importance_score = $13, status = $14,
			supersedes_id = $15, superseded_by_id = $16, last_decay_at = $17,
			embedding = $18, embedding_model = $19, updated_at = $20
		WHERE id = $21`,
		e.Name, e.Kind, e.Relationship, e.Confirmed,
		e.MentionCount, e.FirstMentionedAt, e.LastMentionedAt,
		notesJSON, e.Summary, topicsJSON, nullTimePtr(e.LastConsolidatedAt),
		e.Importance, e.ImportanceScore, e.Status,
		nullString(e.SupersedesID), nullString(e.SupersededByID), nullTimePtr(e.LastDecayAt),
		embJSON, e.EmbeddingModel, e.UpdatedAt,
		e.ID)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanEntity(row interface{ Scan(...interface{}) error }) (*types.Entity, error) {
	var (
		e                         types.Entity
		notes, topics, embedding  sql.NullString
		supersedes, supersededBy  sql.NullString
		consolidatedAt, decayedAt sql.NullTime
	)

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Kind, &e.Relationship, &e.Confirmed,
		&e.MentionCount, &e.FirstMentionedAt, &e.LastMentionedAt, &notes,
		&e.Summary, &topics, &consolidatedAt, &e.Importance, &e.ImportanceScore,
		&e.Status, &supersedes, &supersededBy, &decayedAt,
		&embedding, &e.EmbeddingModel, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		_ = json.Unmarshal([]byte(notes.String), &e.ContextNotes)
	}
	if topics.Valid {
		_ = json.Unmarshal([]byte(topics.String), &e.Topics)
	}
	if embedding.Valid {
		_ = json.Unmarshal([]byte(embedding.String), &e.Embedding)
	}
	e.SupersedesID = supersedes.String
	e.SupersededByID = supersededBy.String
	if consolidatedAt.Valid {
		t := consolidatedAt.Time
		e.LastConsolidatedAt = &t
	}
	if decayedAt.Valid {
		t := decayedAt.Time
		e.LastDecayAt = &t
	}
	return &e, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// ListEntities retrieves entities matching the filter, most recently
// mentioned first.
func (s *Store) ListEntities(ctx context.Context, f storage.EntityFilter) ([]types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE owner_id = $1`
	args := []interface{}{f.OwnerID}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if f.NameQuery != "" {
		args = append(args, "%"+f.NameQuery+"%")
		query += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}
	if f.MinMentions > 0 {
		args = append(args, f.MinMentions)
		query += fmt.Sprintf(` AND mention_count >= $%d`, len(args))
	}
	query += ` ORDER BY last_mentioned_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ActiveEntityByName returns the most recently created active record for
// a name (case-insensitive).
func (s *Store) ActiveEntityByName(ctx context.Context, ownerID, name string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = $1 AND status = 'active' AND LOWER(name) = LOWER($2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, ownerID, name)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active entity: %w", err)
	}
	return e, nil
}

// EntitiesByName returns every record for a name regardless of status,
// newest first.
func (s *Store) EntitiesByName(ctx context.Context, ownerID, name string) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = $1 AND LOWER(name) = LOWER($2)
		ORDER BY created_at DESC, id DESC`, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by name: %w", err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// RetireEntity conditionally marks an active entity superseded.
func (s *Store) RetireEntity(ctx context.Context, id, supersededByID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET status = 'superseded', superseded_by_id = $1, updated_at = $2
		WHERE id = $3 AND status = 'active'`,
		supersededByID, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to retire entity: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetEntityStatus sets the lifecycle status unconditionally.
func (s *Store) SetEntityStatus(ctx context.Context, id string, status types.EntityStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET status = $1, updated_at = $2 WHERE id = $3`,
		status, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set entity status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ApplyDecay writes a decayed score conditional on the entity still being
// active and not already decayed within the current cycle window.
func (s *Store) ApplyDecay(ctx context.Context, id string, score float64, status types.EntityStatus, now, cycleFloor time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET importance_score = $1, status = $2, last_decay_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'active'
		  AND (last_decay_at IS NULL OR last_decay_at <= $5)`,
		score, status, now.UTC(), id, cycleFloor.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to apply decay: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// maxChainLength caps supersession-chain walks to guard against cyclic data.
const maxChainLength = 50

// EntityChain returns the full version history for an entity, oldest
// version first.
func (s *Store) EntityChain(ctx context.Context, id string) ([]*types.Entity, error) {
	start, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	var history []*types.Entity
	cur := start
	seen := map[string]bool{cur.ID: true}
	for cur.SupersedesID != "" && len(history) < maxChainLength {
		prev, err := s.GetEntity(ctx, cur.SupersedesID)
		if err != nil || seen[prev.ID] {
			break
		}
		seen[prev.ID] = true
		history = append(history, prev)
		cur = prev
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	chain := append(history, start)

	cur = start
	for cur.SupersededByID != "" && len(chain) < maxChainLength {
		next, err := s.GetEntity(ctx, cur.SupersededByID)
		if err != nil || seen[next.ID] {
			break
		}
		seen[next.ID] = true
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// Owners lists the distinct owner IDs present in the entity table.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM entities ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}
