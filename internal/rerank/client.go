// Package rerank reorders retrieved candidates with a cross-encoder scoring
// service, falling back to retrieval similarity for candidates it cannot score.
package rerank

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

// HTTPScorer calls a rerank endpoint that scores documents against a query:
//
//	POST {baseURL}/rerank {"query": q, "documents": [text]}
//	-> {"results": [{"index": 0, "relevance_score": 0.93}]}
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorer creates a scorer for the service at baseURL.
func NewHTTPScorer(baseURL string, client *http.Client) *HTTPScorer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPScorer{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score returns the relevance of text to query.
func (s *HTTPScorer) Score(ctx context.Context, query, text string) (float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: []string{text}})
	if err != nil {
		return 0, fmt.Errorf("encode rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("reranker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, domain.Invalid("text", "rejected by reranker: %s", strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("reranker: %s", resp.Status)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode rerank response: %w", err)
	}
	for _, r := range out.Results {
		if r.Index == 0 {
			return r.RelevanceScore, nil
		}
	}
	return 0, fmt.Errorf("reranker returned no score")
}

// Health checks the service's /health endpoint.
func (s *HTTPScorer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reranker health: %s", resp.Status)
	}
	return nil
}
