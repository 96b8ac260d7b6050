// Package embedding turns chunk and query text into vectors using OpenAI,
// Gemini or a self-hosted embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/rag-server/internal/domain"
)

// DefaultModel is the OpenAI embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// OpenAIEmbedder embeds text with the OpenAI embeddings API.
// Retries are left to the caller; request errors the API will never accept
// are reported as validation errors.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder. An empty apiKey falls back to
// OPENAI_API_KEY, which the SDK reads on its own.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int) (*OpenAIEmbedder, error) {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	// Retries happen one level up, under the configured call policy.
	opts = append(opts, option.WithMaxRetries(0))

	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

// Client returns the underlying OpenAI client so the generator can share it.
func (e *OpenAIEmbedder) Client() *openai.Client {
	return &e.client
}

// Embed returns the vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Invalid("text", "cannot embed empty text")
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		if isBadRequest(err) {
			return nil, domain.Invalid("text", "rejected by embedding model: %v", err)
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty response")
	}

	return checkDimension(toFloat32(resp.Data[0].Embedding), e.dimension)
}

// isBadRequest reports a 400-class error other than rate limiting.
func isBadRequest(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the vector stores take float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

func checkDimension(v []float32, want int) ([]float32, error) {
	if want > 0 && len(v) != want {
		return nil, fmt.Errorf("embedding has dimension %d, expected %d", len(v), want)
	}
	return v, nil
}
