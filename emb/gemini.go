package emb

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	geminiMaxBatch = 100
	// geminiTaskType tunes embeddings for comparing short phrases with each other.
	geminiTaskType = "SEMANTIC_SIMILARITY"
)

// GeminiConfig configures the Gemini embedding client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
}

// GeminiEncoder embeds text through the Gemini API.
type GeminiEncoder struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiEncoder creates a client. An empty APIKey falls back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables read by the SDK.
func NewGeminiEncoder(ctx context.Context, cfg GeminiConfig) (*GeminiEncoder, error) {
	if cfg.Model == "" {
		return nil, errors.New("gemini model is required")
	}
	clientCfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if cfg.APIKey != "" {
		clientCfg.APIKey = cfg.APIKey
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEncoder{client: client, cfg: cfg}, nil
}

// ModelID reports the Gemini embedding model.
func (g *GeminiEncoder) ModelID() string {
	return g.cfg.Model
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (g *GeminiEncoder) Close() error {
	return nil
}

// EmbedText embeds a single text.
func (g *GeminiEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in API-sized batches, preserving order.
func (g *GeminiEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType}
	if g.cfg.Dimensions > 0 {
		dims := int32(g.cfg.Dimensions)
		cfg.OutputDimensionality = &dims
	}
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.cfg.Model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != len(contents) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(contents))
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, errors.New("gemini returned an empty embedding")
			}
			vec := make([]float32, len(e.Values))
			copy(vec, e.Values)
			out = append(out, normalize(vec))
		}
	}
	return out, nil
}
