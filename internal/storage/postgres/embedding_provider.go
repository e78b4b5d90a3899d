package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/engram/internal/storage"
)

// EmbeddingProvider implements storage.EmbeddingProvider using PostgreSQL.
// The embedding is always stored as JSONB for portability; when pgvector
// is available it is also written to embedding_vec for cosine-distance
// queries.
type EmbeddingProvider struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// NewEmbeddingProvider creates a PostgreSQL embedding provider.
func NewEmbeddingProvider(db *sql.DB, pgvectorAvailable bool) *EmbeddingProvider {
	return &EmbeddingProvider{db: db, pgvectorAvailable: pgvectorAvailable}
}

// StoreEntityEmbedding writes the embedding vector and model name for an
// entity.
func (p *EmbeddingProvider) StoreEntityEmbedding(ctx context.Context, entityID string, embedding []float32, model string) error {
	if entityID == "" || len(embedding) == 0 {
		return fmt.Errorf("%w: entity ID and embedding are required", storage.ErrInvalidInput)
	}

	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	now := time.Now().UTC()

	if p.pgvectorAvailable {
		vec := pgvector.NewVector(embedding)
		res, err := p.db.ExecContext(ctx, `
			UPDATE entities
			SET embedding = $1, embedding_vec = $2, embedding_model = $3, updated_at = $4
			WHERE id = $5`, string(raw), vec, model, now, entityID)
		if err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return nil
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE entities SET embedding = $1, embedding_model = $2, updated_at = $3
		WHERE id = $4`, string(raw), model, now, entityID)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
