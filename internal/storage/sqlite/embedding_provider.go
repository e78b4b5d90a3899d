package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/storage"
)

// EmbeddingProvider stores entity embeddings as JSON in the entities
// table. SQLite has no native vector type, so similarity search over this
// backend is done in Go by whoever reads the vectors back.
type EmbeddingProvider struct {
	db *sql.DB
}

// NewEmbeddingProvider creates an embedding provider over an open
// SQLite connection.
func NewEmbeddingProvider(db *sql.DB) *EmbeddingProvider {
	return &EmbeddingProvider{db: db}
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

	res, err := p.db.ExecContext(ctx, `
		UPDATE entities SET embedding = ?, embedding_model = ?, updated_at = ?
		WHERE id = ?`, string(raw), model, time.Now().UTC(), entityID)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
