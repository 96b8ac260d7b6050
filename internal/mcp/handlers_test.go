package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

type stubAnswerer struct {
	answer *domain.Answer
	err    error
	got    domain.ChatQuery
}

func (s *stubAnswerer) Answer(_ context.Context, q domain.ChatQuery) (*domain.Answer, error) {
	s.got = q
	return s.answer, s.err
}

type stubIngester struct {
	submitted []domain.Document
	jobs      map[string]*jobs.Job
}

func (s *stubIngester) Submit(_ context.Context, docs []domain.Document) (*jobs.Job, error) {
	s.submitted = docs
	return &jobs.Job{ID: "job-9", Status: jobs.StatusQueued, Documents: []string{"doc-1"}}, nil
}

func (s *stubIngester) Get(_ context.Context, id string) (*jobs.Job, error) {
	if j, ok := s.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
}

func TestAskHandler(t *testing.T) {
	ans := &stubAnswerer{answer: &domain.Answer{
		Text:          "I could not find this in the indexed documents.",
		UsedChunkIDs:  []string{},
		NoInformation: true,
	}}
	handler := makeAskHandler(ans)

	_, out, err := handler(context.Background(), nil, AskQuestionInput{Query: "what is the refund window?", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, ans.got.TopK)
	assert.True(t, out.NoInformation)
	assert.NotNil(t, out.Citations)
}

func TestAskHandler_Error(t *testing.T) {
	handler := makeAskHandler(&stubAnswerer{err: domain.ErrGenerationUnavailable})

	_, _, err := handler(context.Background(), nil, AskQuestionInput{Query: "q"})
	if !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("expected generation unavailable, got %v", err)
	}
}

func TestIngestHandler(t *testing.T) {
	ing := &stubIngester{}
	handler := makeIngestHandler(ing)

	_, out, err := handler(context.Background(), nil, IngestTextInput{SourceName: "faq.md", Content: "# FAQ"})
	require.NoError(t, err)
	assert.Equal(t, "job-9", out.JobID)
	assert.Equal(t, "queued", out.Status)
	assert.Equal(t, "doc-1", out.DocumentID)
	require.Len(t, ing.submitted, 1)
	assert.Equal(t, domain.FormatMarkdown, ing.submitted[0].Format)

	_, _, err = handler(context.Background(), nil, IngestTextInput{SourceName: "scan.docx", Content: "x"})
	assert.True(t, domain.IsValidation(err))

	ing.submitted = nil
	_, _, err = handler(context.Background(), nil, IngestTextInput{SourceName: "scan.pdf", Content: "%PDF-1.4"})
	assert.True(t, domain.IsValidation(err))
	assert.ErrorContains(t, err, "pdf extraction is not enabled")
	assert.Nil(t, ing.submitted, "pdf must not reach the pipeline")
}

func TestStatusHandler(t *testing.T) {
	now := time.Now()
	ing := &stubIngester{jobs: map[string]*jobs.Job{
		"job-1": {
			ID:        "job-1",
			Status:    jobs.StatusPartiallyFailed,
			Documents: []string{"a", "b"},
			DocumentStatus: map[string]jobs.DocumentState{
				"a": {Status: jobs.DocumentSucceeded, SourceName: "a.txt", Chunks: 2},
				"b": {Status: jobs.DocumentFailed, SourceName: "b.txt", Error: "document \"b.txt\" is empty"},
			},
			UpdatedAt: now,
		},
	}}
	handler := makeStatusHandler(ing)

	_, out, err := handler(context.Background(), nil, IngestStatusInput{JobID: "job-1"})
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "partially_failed", out.Status)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, "a", out.Documents[0].DocumentID)
	assert.Equal(t, 2, out.Documents[0].Chunks)
	assert.Contains(t, out.Documents[1].Error, "empty")

	_, out, err = handler(context.Background(), nil, IngestStatusInput{JobID: "nope"})
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(&Config{Answerer: &stubAnswerer{}, Ingester: &stubIngester{}})
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, NewHTTPHandler(s, true))
}
