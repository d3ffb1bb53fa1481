package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"course-rag/internal/chunker"
	"course-rag/internal/extract"
	"course-rag/internal/models"
	"course-rag/internal/store"
	"course-rag/internal/tenant"

	"github.com/rs/zerolog/log"
)

// maxUploadBytes is the per-file size limit.
const maxUploadBytes = 50 << 20

// ValidationError reports a bad request (file count or size). It is carried
// in the ingest result rather than raised, so the caller's control flow
// stays uniform.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Extractor is the dispatcher seam; *extract.Dispatcher satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// FileUpload is one uploaded file awaiting ingestion.
type FileUpload struct {
	Path   string
	Name   string
	FileID int64
	Size   int64
}

// Request carries the upload plus optional course-context hints.
type Request struct {
	Files    []FileUpload
	Concepts []string
	Summary  string
}

type FileResult struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// Result is always status "ok"; validation failures surface in Error with
// ChunksAdded 0.
type Result struct {
	Status      string       `json:"status"`
	ChunksAdded int          `json:"chunksAdded"`
	Files       []FileResult `json:"files,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Orchestrator drives one file end to end: validate, extract, chunk,
// embed+store, update the course context.
type Orchestrator struct {
	extractor Extractor
	splitter  *chunker.Splitter
	chunks    store.ChunkStore
	contexts  store.ContextStore
	now       func() time.Time
}

func NewOrchestrator(extractor Extractor, splitter *chunker.Splitter, chunks store.ChunkStore, contexts store.ContextStore) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		splitter:  splitter,
		chunks:    chunks,
		contexts:  contexts,
		now:       time.Now,
	}
}

// Ingest processes exactly one uploaded file into one tenant's index.
// Re-ingesting a file id replaces its prior chunks. The temporary upload
// file is removed on every path past validation.
func (o *Orchestrator) Ingest(ctx context.Context, ownerID int64, course string, req Request) (*Result, error) {
	if verr := validate(req); verr != nil {
		log.Warn().Str("reason", verr.Reason).Msg("Rejecting ingest request")
		return &Result{Status: "ok", Error: verr.Error()}, nil
	}
	f := req.Files[0]
	defer func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", f.Path).Msg("Failed to remove uploaded file")
		}
	}()

	key := tenant.Normalize(course)
	log.Info().Str("file", f.Name).Str("tenant", key).Int64("owner", ownerID).Msg("Ingesting document")

	res, err := o.extractor.Extract(ctx, f.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", f.Name, err)
	}

	combined := res.Text
	if len(res.ImageTexts) > 0 {
		combined += "\n\n" + strings.Join(res.ImageTexts, "\n\n")
	}

	pieces := o.splitter.Chunk(combined)
	newChunks := make([]store.NewChunk, len(pieces))
	for i, text := range pieces {
		newChunks[i] = store.NewChunk{Text: text, Index: i}
	}

	// Re-ingestion replaces the file's prior chunks.
	if err := o.chunks.DeleteFile(ctx, f.FileID); err != nil {
		return nil, fmt.Errorf("ingest %s: clearing prior chunks: %w", f.Name, err)
	}
	added, err := o.chunks.AddChunks(ctx, ownerID, key, newChunks, f.FileID, f.Name)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: storing chunks: %w", f.Name, err)
	}

	if err := o.updateContext(ctx, ownerID, key, f.Name, req); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", f.Name, err)
	}

	log.Info().Str("file", f.Name).Str("method", string(res.Method)).Int("chunks", added).Msg("Document ingested")
	return &Result{
		Status:      "ok",
		ChunksAdded: added,
		Files:       []FileResult{{Name: f.Name, Chunks: added}},
	}, nil
}

func (o *Orchestrator) updateContext(ctx context.Context, ownerID int64, key, filename string, req Request) error {
	cc, err := o.contexts.GetContext(ctx, ownerID, key)
	if err != nil {
		return fmt.Errorf("loading course context: %w", err)
	}
	if cc == nil {
		cc = &models.CourseContext{}
	}
	now := o.now()
	cc.Merge(models.DocumentRef{Filename: filename, UploadedAt: now}, req.Concepts, req.Summary, now)
	if err := o.contexts.PutContext(ctx, ownerID, key, cc); err != nil {
		return fmt.Errorf("saving course context: %w", err)
	}
	return nil
}

func validate(req Request) *ValidationError {
	switch {
	case len(req.Files) == 0:
		return &ValidationError{Reason: "no file provided"}
	case len(req.Files) > 1:
		return &ValidationError{Reason: "exactly one file per request"}
	case req.Files[0].Size > maxUploadBytes:
		return &ValidationError{Reason: fmt.Sprintf("file %s exceeds the 50MB limit", req.Files[0].Name)}
	}
	return nil
}
