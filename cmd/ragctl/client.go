package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

// client talks to a running rag-server over its REST API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiDocument struct {
	SourceName string `json:"source_name"`
	Format     string `json:"format,omitempty"`
	Content    string `json:"content"`
}

// Submit posts documents to /v1/ingest.
func (c *client) Submit(ctx context.Context, docs []domain.Document) (*jobs.Job, error) {
	body := struct {
		Documents []apiDocument `json:"documents"`
	}{Documents: make([]apiDocument, 0, len(docs))}
	for _, d := range docs {
		body.Documents = append(body.Documents, apiDocument{
			SourceName: d.SourceName,
			Format:     string(d.Format),
			Content:    d.Content,
		})
	}

	var job jobs.Job
	if err := c.do(ctx, http.MethodPost, "/v1/ingest", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Status fetches a job snapshot.
func (c *client) Status(ctx context.Context, jobID string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodGet, "/v1/ingest/status/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Ask posts a question to /v1/chat.
func (c *client) Ask(ctx context.Context, query string, topK int) (*domain.Answer, error) {
	body := map[string]any{"query": query}
	if topK > 0 {
		body["top_k"] = topK
	}
	var ans domain.Answer
	if err := c.do(ctx, http.MethodPost, "/v1/chat", body, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// Wait polls until the job reaches a terminal status.
func (c *client) Wait(ctx context.Context, jobID string, every time.Duration) (*jobs.Job, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
