package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/metrics"
	"github.com/bull/rag-server/internal/rerank"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRetriever struct {
	candidates []domain.RetrievedCandidate
	err        error
	gotTopK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]domain.RetrievedCandidate, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > topK {
		return f.candidates[:topK], nil
	}
	return f.candidates, nil
}

type fakeGenerator struct {
	calls      atomic.Int32
	completion *domain.Completion
	err        error
	lastPrompt domain.Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, p domain.Prompt) (*domain.Completion, error) {
	f.calls.Add(1)
	f.lastPrompt = p
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, string, string) (float64, error) {
	return 0, errors.New("scorer down")
}

func candidate(id, doc string, start int, sim float64) domain.RetrievedCandidate {
	text := "text of " + id
	return domain.RetrievedCandidate{
		ChunkID:    id,
		DocumentID: doc,
		SourceName: doc + ".md",
		Text:       text,
		Offsets:    domain.Offsets{Start: start, End: start + len(text)},
		Similarity: sim,
	}
}

func newOrchestrator(r Retriever, g domain.GenerationClient, m *metrics.Metrics) *Orchestrator {
	return NewOrchestrator(r, rerank.NewReranker(nil, 2, quietLogger()), g, Config{}, m, quietLogger())
}

func TestAnswer_EmptyCorpusSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	m := metrics.New()
	o := newOrchestrator(&fakeRetriever{}, gen, m)

	a, err := o.Answer(context.Background(), domain.ChatQuery{Text: "anything?"})
	require.NoError(t, err)

	assert.True(t, a.NoInformation)
	assert.Equal(t, NoInformationText, a.Text)
	assert.Empty(t, a.Citations)
	assert.NotNil(t, a.UsedChunkIDs)
	assert.Equal(t, int32(0), gen.calls.Load(), "generator must not be called")
}

func TestAnswer_CitesOnlySourcesInContext(t *testing.T) {
	retr := &fakeRetriever{candidates: []domain.RetrievedCandidate{
		candidate("c1", "doc1", 0, 0.9),
		candidate("c2", "doc2", 0, 0.8),
		candidate("c3", "doc1", 500, 0.7),
	}}
	gen := &fakeGenerator{completion: &domain.Completion{
		Text:         "The answer.",
		CitedSources: []int{2, 9},
		Confidence:   "high",
	}}
	o := newOrchestrator(retr, gen, nil)

	a, err := o.Answer(context.Background(), domain.ChatQuery{Text: "question", TopK: 3})
	require.NoError(t, err)

	assert.False(t, a.NoInformation)
	assert.Equal(t, "The answer.", a.Text)
	assert.Equal(t, "high", a.Confidence)
	assert.Equal(t, []string{"c1", "c2", "c3"}, a.UsedChunkIDs)
	assert.Contains(t, gen.lastPrompt.Context, "[source_id: 3]")

	require.Len(t, a.Citations, 3)
	cited := map[string]bool{}
	for _, c := range a.Citations {
		if c.Cited {
			cited[c.DocumentID] = true
			assert.Equal(t, []int{2}, c.SourceIDs)
		}
	}
	assert.Equal(t, map[string]bool{"doc2": true}, cited)
}

func TestAnswer_TinyBudgetStillGrounded(t *testing.T) {
	retr := &fakeRetriever{candidates: []domain.RetrievedCandidate{
		candidate("c1", "d", 0, 0.9),
		candidate("c2", "d", 100, 0.8),
	}}
	gen := &fakeGenerator{completion: &domain.Completion{Text: "short", CitedSources: []int{1}}}
	o := newOrchestrator(retr, gen, nil)

	a, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q", MaxContextTokens: 10})
	require.NoError(t, err)

	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Contains(t, gen.lastPrompt.Context, "[source_id: 1]")
	assert.Contains(t, gen.lastPrompt.Context, "text of c1")
	assert.Equal(t, []string{"c1"}, a.UsedChunkIDs)
	require.Len(t, a.Citations, 1)
	assert.True(t, a.Citations[0].Cited)
}

func TestAnswer_NoUsableContextSkipsGeneration(t *testing.T) {
	blank := candidate("c1", "d", 0, 0.9)
	blank.Text = "   "
	retr := &fakeRetriever{candidates: []domain.RetrievedCandidate{blank}}
	gen := &fakeGenerator{}
	o := newOrchestrator(retr, gen, metrics.New())

	a, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q"})
	require.NoError(t, err)

	assert.True(t, a.NoInformation)
	assert.Equal(t, NoInformationText, a.Text)
	assert.Empty(t, a.Citations)
	assert.Equal(t, int32(0), gen.calls.Load(), "generator must not be called")
}

func TestAnswer_GenerationFailure(t *testing.T) {
	retr := &fakeRetriever{candidates: []domain.RetrievedCandidate{candidate("c1", "d", 0, 0.5)}}
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	o := newOrchestrator(retr, gen, nil)

	_, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestAnswer_RetrievalFailurePropagates(t *testing.T) {
	retr := &fakeRetriever{err: domain.ErrVectorStoreUnavailable}
	gen := &fakeGenerator{}
	o := newOrchestrator(retr, gen, nil)

	_, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q"})
	assert.ErrorIs(t, err, domain.ErrVectorStoreUnavailable)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestAnswer_DegradedRerank(t *testing.T) {
	retr := &fakeRetriever{candidates: []domain.RetrievedCandidate{
		candidate("c1", "d", 0, 0.9),
		candidate("c2", "d", 100, 0.8),
	}}
	gen := &fakeGenerator{completion: &domain.Completion{Text: "ok"}}
	m := metrics.New()
	o := NewOrchestrator(retr, rerank.NewReranker(failingScorer{}, 2, quietLogger()), gen, Config{}, m, quietLogger())

	a, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q"})
	require.NoError(t, err)
	assert.True(t, a.Degraded)
	assert.Equal(t, []string{"c1", "c2"}, a.UsedChunkIDs, "similarity order kept")
}

func TestAnswer_Validation(t *testing.T) {
	o := newOrchestrator(&fakeRetriever{}, &fakeGenerator{}, nil)

	tests := []struct {
		name string
		q    domain.ChatQuery
	}{
		{"empty", domain.ChatQuery{Text: "   "}},
		{"too long", domain.ChatQuery{Text: strings.Repeat("x", DefaultMaxQueryLength+1)}},
		{"top_k too large", domain.ChatQuery{Text: "q", TopK: DefaultMaxTopK + 1}},
		{"negative top_k", domain.ChatQuery{Text: "q", TopK: -1}},
		{"negative budget", domain.ChatQuery{Text: "q", MaxContextTokens: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Answer(context.Background(), tt.q)
			if !domain.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAnswer_AppliesDefaultTopK(t *testing.T) {
	retr := &fakeRetriever{}
	o := newOrchestrator(retr, &fakeGenerator{}, nil)

	_, err := o.Answer(context.Background(), domain.ChatQuery{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, retr.gotTopK)
}

func TestAnswer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retr := &fakeRetriever{err: ctx.Err()}
	o := newOrchestrator(retr, &fakeGenerator{}, nil)

	_, err := o.Answer(ctx, domain.ChatQuery{Text: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}
