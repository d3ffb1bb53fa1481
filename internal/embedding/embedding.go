package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"course-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNotConfigured is raised eagerly on first use when no embedding backend
// is configured, never swallowed.
var ErrNotConfigured = errors.New("embedding: backend not configured")

// Service wraps a langchaingo embedder behind a load-once lifecycle. The
// backend model is created on first Embed call and shared for the process
// lifetime; Shutdown resets it for test isolation.
type Service struct {
	cfg config.LLMConfig

	mu      sync.Mutex
	backend embeddings.Embedder
}

func NewService(cfg config.LLMConfig) *Service {
	return &Service{cfg: cfg}
}

// NewServiceWithBackend injects an already-constructed embedder, bypassing
// lazy initialization. Used by tests and by callers that manage the model
// themselves.
func NewServiceWithBackend(backend embeddings.Embedder) *Service {
	return &Service{backend: backend}
}

// Initialize forces backend construction up front instead of on first use.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

// Shutdown drops the backend so the next call reinitializes.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = nil
}

func (s *Service) initLocked() error {
	if s.backend != nil {
		return nil
	}
	if s.cfg.Model == "" {
		return ErrNotConfigured
	}

	log.Debug().
		Str("provider", s.cfg.Provider).
		Str("base_url", s.cfg.BaseURL).
		Str("model", s.cfg.Model).
		Msg("Initializing embedding backend")

	var client embeddings.EmbedderClient
	switch s.cfg.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(s.cfg.BaseURL),
			ollama.WithModel(s.cfg.Model),
		)
		if err != nil {
			return fmt.Errorf("embedding: initializing ollama: %w", err)
		}
		client = llm
	default:
		if s.cfg.BaseURL == "" && s.cfg.Key == "" {
			return ErrNotConfigured
		}
		llm, err := openai.New(
			openai.WithBaseURL(s.cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(s.cfg.Key, "Bearer ")),
			openai.WithModel(s.cfg.Model),
		)
		if err != nil {
			return fmt.Errorf("embedding: initializing openai: %w", err)
		}
		client = llm
	}

	backend, err := embeddings.NewEmbedder(client)
	if err != nil {
		return fmt.Errorf("embedding: creating embedder: %w", err)
	}
	s.backend = backend
	return nil
}

// Embed returns one L2-normalized vector per input text, order-preserving,
// issued as a single batched call.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	if err := s.initLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	backend := s.backend
	s.mu.Unlock()

	if s.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}

	vecs, err := backend.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i := range vecs {
		Normalize(vecs[i])
	}
	return vecs, nil
}

// Normalize scales v to unit length in place. Cosine similarity of unit
// vectors reduces to a dot product. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
