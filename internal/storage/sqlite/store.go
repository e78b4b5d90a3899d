// Package sqlite implements the storage.Store interface on SQLite using
// the pure-Go modernc.org/sqlite driver. This is the default backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at the given DSN,
// configures WAL mode, and applies the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent ingestion;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection for the embedding provider.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// marshalStrings serialises a string slice to JSON, returning nil for an
// empty slice so the column stays NULL.
func marshalStrings(vals []string) ([]byte, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return json.Marshal(vals)
}

func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func marshalFloats(vals []float32) ([]byte, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return json.Marshal(vals)
}

func unmarshalFloats(raw sql.NullString) []float32 {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []float32
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func nullTime(t *time.Time) interface{} {
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

	notesJSON, err := marshalStrings(e.ContextNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal context_notes: %w", err)
	}
	topicsJSON, err := marshalStrings(e.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	embJSON, err := marshalFloats(e.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Name, e.Kind, e.Relationship, e.Confirmed,
		e.MentionCount, e.FirstMentionedAt, e.LastMentionedAt, nullableBytes(notesJSON),
		e.Summary, nullableBytes(topicsJSON), nullTime(e.LastConsolidatedAt),
		e.Importance, e.ImportanceScore,
		e.Status, nullableString(e.SupersedesID), nullableString(e.SupersededByID),
		nullTime(e.LastDecayAt),
		nullableBytes(embJSON), e.EmbeddingModel, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// UpdateEntity overwrites the mutable fields of an existing entity.
func (s *Store) UpdateEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	e.UpdatedAt = time.Now().UTC()

	notesJSON, err := marshalStrings(e.ContextNotes)
	if err != nil {
		return fmt.Errorf("failed to marshal context_notes: %w", err)
	}
	topicsJSON, err := marshalStrings(e.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}
	embJSON, err := marshalFloats(e.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			name = ?, kind = ?, relationship = ?, confirmed = ?,
			mention_count = ?, first_mentioned_at = ?, last_mentioned_at = ?,
			context_notes = ?, summary = ?, topics = ?, last_consolidated_at = ?,
			importance = ?, importance_score = ?, status = ?,
			supersedes_id = ?, superseded_by_id = ?, last_decay_at = ?,
			embedding = ?, embedding_model = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, e.Kind, e.Relationship, e.Confirmed,
		e.MentionCount, e.FirstMentionedAt, e.LastMentionedAt,
		nullableBytes(notesJSON), e.Summary, nullableBytes(topicsJSON), nullTime(e.LastConsolidatedAt),
		e.Importance, e.ImportanceScore, e.Status,
		nullableString(e.SupersedesID), nullableString(e.SupersededByID), nullTime(e.LastDecayAt),
		nullableBytes(embJSON), e.EmbeddingModel, e.UpdatedAt,
		e.ID)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanEntity reads one entity row.
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

	e.ContextNotes = unmarshalStrings(notes)
	e.Topics = unmarshalStrings(topics)
	e.Embedding = unmarshalFloats(embedding)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
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
	query := `SELECT ` + entityColumns + ` FROM entities WHERE owner_id = ?`
	args := []interface{}{f.OwnerID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.NameQuery != "" {
		query += ` AND name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+f.NameQuery+"%")
	}
	if f.MinMentions > 0 {
		query += ` AND mention_count >= ?`
		args = append(args, f.MinMentions)
	}
	query += ` ORDER BY last_mentioned_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
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
// a name. The created_at ordering, not status alone, decides the
// authoritative head so a lost retire step cannot surface a stale record.
func (s *Store) ActiveEntityByName(ctx context.Context, ownerID, name string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = ? AND status = 'active' AND name = ? COLLATE NOCASE
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
		WHERE owner_id = ? AND name = ? COLLATE NOCASE
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
		SET status = 'superseded', superseded_by_id = ?, updated_at = ?
		WHERE id = ? AND status = 'active'`,
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
		`UPDATE entities SET status = ?, updated_at = ? WHERE id = ?`,
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
		SET importance_score = ?, status = ?, last_decay_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
		  AND (last_decay_at IS NULL OR last_decay_at <= ?)`,
		score, status, now.UTC(), now.UTC(), id, cycleFloor.UTC())
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

	// Walk backward to the oldest version.
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
	// history is newest-adjacent first; reverse into oldest-first order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	chain := append(history, start)

	// Walk forward through successors.
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
