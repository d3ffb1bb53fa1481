package store

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"course-rag/internal/tenant"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const chromemCompress = false

// ChromemStore keeps one chromem collection per (owner, tenant) pair, so a
// collection handle is structurally incapable of returning another
// tenant's chunks.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
}

func NewChromemStore(dbPath string, inMemory bool, embedder Embedder) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, chromemCompress)
		if err != nil {
			return nil, fmt.Errorf("store: creating chromem database: %w", err)
		}
	}
	return &ChromemStore{db: db, embedder: embedder}, nil
}

func (s *ChromemStore) collection(ownerID int64, tenantKey string) (*chromem.Collection, error) {
	name := tenant.CollectionName(ownerID, tenantKey)
	c, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("store: collection %s: %w", name, err)
	}
	return c, nil
}

func (s *ChromemStore) AddChunks(ctx context.Context, ownerID int64, tenantKey string, chunks []NewChunk, fileID int64, fileName string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if err := validateChunks(chunks, vectors); err != nil {
		return 0, err
	}

	col, err := s.collection(ownerID, tenantKey)
	if err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{
			"file_id":     strconv.FormatInt(fileID, 10),
			"file_name":   fileName,
			"chunk_index": strconv.Itoa(c.Index),
		}
		if c.Page != nil {
			meta["page"] = strconv.Itoa(*c.Page)
		}
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%d-%d", fileID, c.Index),
			Content:   c.Text,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("store: adding documents: %w", err)
	}
	return len(docs), nil
}

// readCollection returns nil when the tenant has never ingested anything.
// Read paths must not create empty collections as a side effect.
func (s *ChromemStore) readCollection(ownerID int64, tenantKey string) *chromem.Collection {
	return s.db.GetCollection(tenant.CollectionName(ownerID, tenantKey), nil)
}

func (s *ChromemStore) Search(ctx context.Context, ownerID int64, tenantKey string, queryVec []float32, topK int) ([]Match, error) {
	col := s.readCollection(ownerID, tenantKey)
	if col == nil {
		return nil, nil
	}

	// chromem rejects nResults beyond the collection size.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, queryVec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("store: querying by similarity: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Text:     r.Content,
			FileID:   parseInt64(r.Metadata["file_id"]),
			FileName: r.Metadata["file_name"],
			Index:    int(parseInt64(r.Metadata["chunk_index"])),
			Page:     parsePage(r.Metadata["page"]),
			Distance: 1 - float64(r.Similarity),
		})
	}
	return matches, nil
}

func (s *ChromemStore) Count(ctx context.Context, ownerID int64, tenantKey string) (int, error) {
	col := s.readCollection(ownerID, tenantKey)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

func (s *ChromemStore) DeleteFile(ctx context.Context, fileID int64) error {
	where := map[string]string{"file_id": strconv.FormatInt(fileID, 10)}
	for name, col := range s.db.ListCollections() {
		if err := col.Delete(ctx, where, nil); err != nil {
			log.Warn().Err(err).Str("collection", name).Int64("file_id", fileID).Msg("Failed to delete file chunks from collection")
		}
	}
	return nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parsePage(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

var _ ChunkStore = (*ChromemStore)(nil)
