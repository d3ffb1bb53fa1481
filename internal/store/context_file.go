package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"course-rag/internal/models"
	"course-rag/internal/tenant"
)

// FileContextStore keeps one JSON file per (owner, tenant) under a
// directory, the same persist-to-directory shape the chromem chunk store
// uses. It pairs with ChromemStore for fully local deployments.
type FileContextStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileContextStore(dir string) (*FileContextStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating context dir: %w", err)
	}
	return &FileContextStore{dir: dir}, nil
}

func (s *FileContextStore) path(ownerID int64, tenantKey string) string {
	return filepath.Join(s.dir, tenant.CollectionName(ownerID, tenantKey)+".json")
}

func (s *FileContextStore) GetContext(ctx context.Context, ownerID int64, tenantKey string) (*models.CourseContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(ownerID, tenantKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading course context: %w", err)
	}
	var cc models.CourseContext
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("store: decoding course context: %w", err)
	}
	return &cc, nil
}

func (s *FileContextStore) PutContext(ctx context.Context, ownerID int64, tenantKey string, cc *models.CourseContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding course context: %w", err)
	}
	if err := os.WriteFile(s.path(ownerID, tenantKey), data, 0o644); err != nil {
		return fmt.Errorf("store: writing course context: %w", err)
	}
	return nil
}

var _ ContextStore = (*FileContextStore)(nil)
