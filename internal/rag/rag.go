package rag

import (
	"context"

	"course-rag/internal/store"
	"course-rag/internal/tenant"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTopK is the number of passages returned when the caller does
	// not ask for a specific count.
	DefaultTopK = 4
	// ColdStartThreshold is the minimum chunk count for a tenant before
	// retrieval-grounded generation is worth attempting.
	ColdStartThreshold = 2
)

// Metadata locates a retrieved passage within its source document.
type Metadata struct {
	File       string `json:"file"`
	ChunkIndex int    `json:"chunkIndex"`
	Page       *int   `json:"page,omitempty"`
}

// Result is one retrieved passage. Distance is 1 - cosine similarity;
// lower means more relevant.
type Result struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// Retriever embeds a query and ranks one tenant's stored chunks against it.
type Retriever struct {
	chunks   store.ChunkStore
	embedder store.Embedder
}

func NewRetriever(chunks store.ChunkStore, embedder store.Embedder) *Retriever {
	return &Retriever{chunks: chunks, embedder: embedder}
}

// Retrieve returns the topK most similar chunks for the (owner, course)
// pair. It never fails: retrieval breaking should degrade generation
// quality, not the caller, so internal errors are logged and yield an
// empty result.
func (r *Retriever) Retrieve(ctx context.Context, ownerID int64, course, query string, topK int) []Result {
	if topK <= 0 {
		topK = DefaultTopK
	}
	key := tenant.Normalize(course)

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Error().Err(err).Str("tenant", key).Msg("Failed to embed query")
		return nil
	}

	matches, err := r.chunks.Search(ctx, ownerID, key, vecs[0], topK)
	if err != nil {
		log.Error().Err(err).Str("tenant", key).Msg("Chunk search failed")
		return nil
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Text:     m.Text,
			Metadata: Metadata{File: m.FileName, ChunkIndex: m.Index, Page: m.Page},
			Distance: m.Distance,
		})
	}
	return results
}

// ChunkCount reports how much material exists for a tenant.
func (r *Retriever) ChunkCount(ctx context.Context, ownerID int64, course string) (int, error) {
	return r.chunks.Count(ctx, ownerID, tenant.Normalize(course))
}

// HasEnoughContext reports whether the tenant is past the cold-start
// threshold; below it, callers should fall back to the coarse course
// summary instead of retrieval-grounded generation.
func (r *Retriever) HasEnoughContext(ctx context.Context, ownerID int64, course string) bool {
	n, err := r.ChunkCount(ctx, ownerID, course)
	return err == nil && n >= ColdStartThreshold
}
