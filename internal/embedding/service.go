package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bull/rag-server/internal/domain"
)

// ServiceEmbedder calls a self-hosted embedding service:
//
//	POST {baseURL}/v1/embedding  {"content": "..."}  ->  {"embedding": [...]}
type ServiceEmbedder struct {
	baseURL   string
	dimension int
	client    *http.Client
}

// NewServiceEmbedder creates a client for the service at baseURL. Timeouts
// come from the caller's context.
func NewServiceEmbedder(baseURL string, dimension int, client *http.Client) *ServiceEmbedder {
	if client == nil {
		client = &http.Client{}
	}
	return &ServiceEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		dimension: dimension,
		client:    client,
	}
}

type embeddingRequest struct {
	Content string `json:"content"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Invalid("text", "cannot embed empty text")
	}

	body, err := json.Marshal(embeddingRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embedding", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Invalid("text", "rejected by embedding service: %s", strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service: %s", resp.Status)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return checkDimension(out.Embedding, e.dimension)
}
