package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultDimensions matches the vector column created for evidence collections.
const DefaultDimensions = 1536

// GoogleEmbedder produces Gemini embeddings with a fixed output size
type GoogleEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// NewGoogleEmbedder creates a Gemini API embedder. dimensions <= 0 selects DefaultDimensions.
func NewGoogleEmbedder(ctx context.Context, model, apiKey string, dimensions int) (*GoogleEmbedder, error) {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GoogleEmbedder{
		client:     client,
		model:      model,
		dimensions: int32(dimensions),
	}, nil
}

// Dimensions reports the embedding size requested from the API.
func (e *GoogleEmbedder) Dimensions() int {
	return int(e.dimensions)
}

// EmbedText embeds a single text
func (e *GoogleEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in one request, preserving order
func (e *GoogleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts)
}

func (e *GoogleEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dims := e.dimensions
	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingCount(res))
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding returned for input %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func embeddingCount(res *genai.EmbedContentResponse) int {
	if res == nil {
		return 0
	}
	return len(res.Embeddings)
}
