package vision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"course-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNotConfigured is returned on first use when the vision backend has no
// base URL or model configured.
var ErrNotConfigured = errors.New("vision: ocr backend not configured")

// OCR recovers text from image-bearing content via an external
// vision-capable model.
type OCR interface {
	ExtractImage(ctx context.Context, path, mimeType string) (string, error)
	ExtractDocument(ctx context.Context, path string) (string, error)
}

const ocrPrompt = "Extract all readable text from this content. Answer only with the extracted text and nothing else."

// Client is an OCR backed by an OpenAI-compatible multimodal model. The
// underlying model client is created once on first use.
type Client struct {
	cfg config.LLMConfig

	mu      sync.Mutex
	llm     llms.Model
	initErr error
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) model() (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.llm != nil || c.initErr != nil {
		return c.llm, c.initErr
	}
	if c.cfg.BaseURL == "" || c.cfg.Model == "" {
		c.initErr = ErrNotConfigured
		return nil, c.initErr
	}
	llm, err := openai.New(
		openai.WithBaseURL(c.cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(c.cfg.Key, "Bearer ")),
		openai.WithModel(c.cfg.Model),
	)
	if err != nil {
		c.initErr = fmt.Errorf("vision: initializing model: %w", err)
		return nil, c.initErr
	}
	c.llm = llm
	return c.llm, nil
}

func (c *Client) ExtractImage(ctx context.Context, path, mimeType string) (string, error) {
	return c.extract(ctx, path, mimeType)
}

func (c *Client) ExtractDocument(ctx context.Context, path string) (string, error) {
	return c.extract(ctx, path, "application/pdf")
}

func (c *Client) extract(ctx context.Context, path, mimeType string) (string, error) {
	llm, err := c.model()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("vision: reading %s: %w", path, err)
	}

	log.Debug().Str("path", path).Str("mime", mimeType).Msg("Sending content to vision OCR")

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, data),
				llms.TextContent{Text: ocrPrompt},
			},
		},
	}
	res, err := llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("vision: generate: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("vision: empty response for %s", path)
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}
