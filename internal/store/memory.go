package store

import (
	"context"
	"fmt"
	"sync"

	"course-rag/internal/models"
	"course-rag/internal/tenant"
)

// MemoryStore is a brute-force in-process implementation of ChunkStore and
// ContextStore. It backs tests and small single-process deployments.
type MemoryStore struct {
	embedder Embedder

	mu       sync.RWMutex
	rows     []memoryRow
	contexts map[string]*models.CourseContext
}

type memoryRow struct {
	ownerID   int64
	tenantKey string
	fileID    int64
	fileName  string
	index     int
	page      *int
	text      string
	vec       []float32
}

func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		contexts: make(map[string]*models.CourseContext),
	}
}

func (s *MemoryStore) AddChunks(ctx context.Context, ownerID int64, tenantKey string, chunks []NewChunk, fileID int64, fileName string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	key := tenant.Normalize(tenantKey)

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

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		s.rows = append(s.rows, memoryRow{
			ownerID:   ownerID,
			tenantKey: key,
			fileID:    fileID,
			fileName:  fileName,
			index:     c.Index,
			page:      c.Page,
			text:      c.Text,
			vec:       vectors[i],
		})
	}
	return len(chunks), nil
}

func (s *MemoryStore) Search(ctx context.Context, ownerID int64, tenantKey string, queryVec []float32, topK int) ([]Match, error) {
	key := tenant.Normalize(tenantKey)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var cands []candidate
	for _, r := range s.rows {
		if r.ownerID != ownerID || r.tenantKey != key {
			continue
		}
		cands = append(cands, candidate{
			match: Match{Text: r.text, FileID: r.fileID, FileName: r.fileName, Index: r.index, Page: r.page},
			vec:   r.vec,
		})
	}
	return rankCandidates(queryVec, cands, topK), nil
}

func (s *MemoryStore) Count(ctx context.Context, ownerID int64, tenantKey string) (int, error) {
	key := tenant.Normalize(tenantKey)

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rows {
		if r.ownerID == ownerID && r.tenantKey == key {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.fileID != fileID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *MemoryStore) GetContext(ctx context.Context, ownerID int64, tenantKey string) (*models.CourseContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.contexts[contextKey(ownerID, tenantKey)]
	if !ok {
		return nil, nil
	}
	return cc.Clone(), nil
}

func (s *MemoryStore) PutContext(ctx context.Context, ownerID int64, tenantKey string, cc *models.CourseContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[contextKey(ownerID, tenantKey)] = cc.Clone()
	return nil
}

func contextKey(ownerID int64, tenantKey string) string {
	return fmt.Sprintf("%d|%s", ownerID, tenant.Normalize(tenantKey))
}

var (
	_ ChunkStore   = (*MemoryStore)(nil)
	_ ContextStore = (*MemoryStore)(nil)
)
