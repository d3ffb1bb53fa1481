package store

import (
	"context"
	"fmt"

	"course-rag/internal/models"
)

// Embedder is the narrow slice of the embedding service the stores need:
// one batched, order-preserving call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewChunk is one passage handed to AddChunks before embedding.
type NewChunk struct {
	Text  string
	Index int
	Page  *int
}

// Match is one ranked retrieval hit. Distance is 1 - cosine similarity, so
// lower is more relevant.
type Match struct {
	Text     string
	FileID   int64
	FileName string
	Index    int
	Page     *int
	Distance float64
}

// ChunkStore persists embedded passages partitioned by (owner, tenant).
// Every read is scoped to that pair; no call can see another tenant's rows.
type ChunkStore interface {
	// AddChunks embeds all chunks in one batched call and persists one row
	// per chunk under the normalized tenant key. Empty input returns 0
	// without error. Once AddChunks returns, the chunks are visible to
	// subsequent searches.
	AddChunks(ctx context.Context, ownerID int64, tenantKey string, chunks []NewChunk, fileID int64, fileName string) (int, error)
	// Search ranks the tenant's chunks by cosine similarity against the
	// query vector and returns the topK best matches.
	Search(ctx context.Context, ownerID int64, tenantKey string, queryVec []float32, topK int) ([]Match, error)
	Count(ctx context.Context, ownerID int64, tenantKey string) (int, error)
	// DeleteFile removes every chunk of one file, across tenants, leaving
	// all other files untouched. Used when a file is removed or re-ingested.
	DeleteFile(ctx context.Context, fileID int64) error
}

// ContextStore persists the per-tenant CourseContext summary record.
type ContextStore interface {
	// GetContext returns nil, nil when no record exists yet.
	GetContext(ctx context.Context, ownerID int64, tenantKey string) (*models.CourseContext, error)
	PutContext(ctx context.Context, ownerID int64, tenantKey string, cc *models.CourseContext) error
}

// validateChunks enforces the store invariant that a chunk is never
// persisted with zero-length text or embedding.
func validateChunks(chunks []NewChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("store: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i := range chunks {
		if chunks[i].Text == "" {
			return fmt.Errorf("store: chunk %d has empty text", i)
		}
		if len(vectors[i]) == 0 {
			return fmt.Errorf("store: chunk %d has empty embedding", i)
		}
	}
	return nil
}
