package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
	"github.com/bull/rag-server/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	fail string // text containing this substring fails
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, domain.ErrEmbeddingUnavailable
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type memoryVectors struct {
	mu      sync.Mutex
	points  map[string]domain.ChunkMetadata
	deleted []string
}

func newMemoryVectors() *memoryVectors {
	return &memoryVectors{points: make(map[string]domain.ChunkMetadata)}
}

func (m *memoryVectors) Upsert(_ context.Context, id string, _ []float32, meta domain.ChunkMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = meta
	return nil
}

func (m *memoryVectors) Search(context.Context, []float32, int) ([]domain.SearchHit, error) {
	return nil, nil
}

func (m *memoryVectors) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, documentID)
	for id, meta := range m.points {
		if meta.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memoryVectors) byDocument(documentID string) []domain.ChunkMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChunkMetadata
	for _, meta := range m.points {
		if meta.DocumentID == documentID {
			out = append(out, meta)
		}
	}
	return out
}

type recordingArchiver struct {
	mu   sync.Mutex
	docs map[string]int
}

func (a *recordingArchiver) Archive(_ context.Context, _ string, doc domain.Document, chunks []domain.Chunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.docs == nil {
		a.docs = make(map[string]int)
	}
	a.docs[doc.ID] = len(chunks)
	return nil
}

func newTestService(t *testing.T, embedder domain.EmbeddingClient, store *memoryVectors, opts ...Option) *Service {
	t.Helper()
	ch, err := chunker.New(chunker.Config{MaxChunkSize: 1000, OverlapSize: 100, BoundaryTolerance: 0.2})
	require.NoError(t, err)
	tracker := jobs.NewTracker(jobs.NewMemoryStore(), quietLogger())
	s := NewService(tracker, ch, embedder, store, Config{Concurrency: 2}, quietLogger(), opts...)
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s
}

func waitForTerminal(t *testing.T, s *Service, jobID string) *jobs.Job {
	t.Helper()
	var job *jobs.Job
	require.Eventually(t, func() bool {
		j, err := s.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

// TestSubmit_MixedSizes covers a job with a short, a long and an empty
// document: one chunk, seven chunks, and a validation failure.
func TestSubmit_MixedSizes(t *testing.T) {
	store := newMemoryVectors()
	archive := &recordingArchiver{}
	m := metrics.New()
	s := newTestService(t, &fakeEmbedder{}, store, WithArchiver(archive), WithMetrics(m), WithDocumentRemover(store))

	docs := []domain.Document{
		{SourceName: "short.txt", Content: strings.Repeat("a", 49) + "."},
		{SourceName: "long.txt", Content: strings.Repeat("abcdefghi ", 600)},
		{SourceName: "empty.txt", Content: ""},
	}
	job, err := s.Submit(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, job.Documents, 3)

	final := waitForTerminal(t, s, job.ID)
	assert.Equal(t, jobs.StatusPartiallyFailed, final.Status)
	assert.NotEmpty(t, final.ErrorDetail)

	shortID, longID, emptyID := final.Documents[0], final.Documents[1], final.Documents[2]

	assert.Equal(t, jobs.DocumentSucceeded, final.DocumentStatus[shortID].Status)
	assert.Equal(t, 1, final.DocumentStatus[shortID].Chunks)
	assert.Equal(t, jobs.DocumentSucceeded, final.DocumentStatus[longID].Status)
	assert.Equal(t, 7, final.DocumentStatus[longID].Chunks)

	empty := final.DocumentStatus[emptyID]
	assert.Equal(t, jobs.DocumentFailed, empty.Status)
	assert.Contains(t, empty.Error, "empty")

	assert.Len(t, store.byDocument(shortID), 1)
	long := store.byDocument(longID)
	require.Len(t, long, 7)
	for _, meta := range long {
		assert.Equal(t, meta.SequenceIndex*900, meta.Offsets.Start)
		assert.Equal(t, job.ID, meta.JobID)
		assert.Equal(t, domain.FormatText, meta.Format)
	}
	assert.Empty(t, store.byDocument(emptyID))

	assert.Equal(t, map[string]int{shortID: 1, longID: 7}, archive.docs)
}

func TestSubmit_EmbeddingFailureFailsDocumentOnly(t *testing.T) {
	store := newMemoryVectors()
	s := newTestService(t, &fakeEmbedder{fail: "poison"}, store)

	job, err := s.Submit(context.Background(), []domain.Document{
		{SourceName: "good.md", Content: "# Title\n\nSome fine content."},
		{SourceName: "bad.md", Content: "# Title\n\npoison pill"},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, s, job.ID)
	assert.Equal(t, jobs.StatusPartiallyFailed, final.Status)
	bad := final.DocumentStatus[final.Documents[1]]
	assert.Equal(t, jobs.DocumentFailed, bad.Status)
	assert.Contains(t, bad.Error, domain.ErrEmbeddingUnavailable.Error())
}

func TestSubmit_AllFail(t *testing.T) {
	s := newTestService(t, &fakeEmbedder{}, newMemoryVectors())

	job, err := s.Submit(context.Background(), []domain.Document{
		{SourceName: "scan.pdf", Content: "%PDF-1.4"},
		{SourceName: "blank.txt", Content: "   "},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, s, job.ID)
	assert.Equal(t, jobs.StatusFailed, final.Status)
	assert.Contains(t, final.DocumentStatus[final.Documents[0]].Error, "pdf extraction is not enabled")
}

func TestSubmit_Validation(t *testing.T) {
	ch, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	tracker := jobs.NewTracker(jobs.NewMemoryStore(), quietLogger())
	s := NewService(tracker, ch, &fakeEmbedder{}, newMemoryVectors(), Config{MaxDocuments: 2, MaxTotalBytes: 10}, quietLogger())
	defer s.Close(context.Background())

	tests := []struct {
		name string
		docs []domain.Document
	}{
		{"none", nil},
		{"too many", []domain.Document{{SourceName: "a.txt"}, {SourceName: "b.txt"}, {SourceName: "c.txt"}}},
		{"too large", []domain.Document{{SourceName: "a.txt", Content: strings.Repeat("x", 11)}}},
		{"no source name", []domain.Document{{Content: "x"}}},
		{"duplicate", []domain.Document{{SourceName: "a.txt", Content: "x"}, {SourceName: "a.txt", Content: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(context.Background(), tt.docs)
			if !domain.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmit_DeterministicDocumentID(t *testing.T) {
	s := newTestService(t, &fakeEmbedder{}, newMemoryVectors())

	a, err := s.Submit(context.Background(), []domain.Document{{SourceName: "a.txt", Content: "hello"}})
	require.NoError(t, err)
	b, err := s.Submit(context.Background(), []domain.Document{{SourceName: "a.txt", Content: "hello"}})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Documents, b.Documents)
	assert.Equal(t, chunker.DocumentID("a.txt", "hello"), a.Documents[0])
}

func TestClose_RejectsNewSubmissions(t *testing.T) {
	s := newTestService(t, &fakeEmbedder{}, newMemoryVectors())
	require.NoError(t, s.Close(context.Background()))

	_, err := s.Submit(context.Background(), []domain.Document{{SourceName: "a.txt", Content: "x"}})
	assert.True(t, errors.Is(err, ErrClosed))
}

// blockingEmbedder waits for its context, to exercise shutdown.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClose_CancelsInFlightWork(t *testing.T) {
	ch, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	tracker := jobs.NewTracker(jobs.NewMemoryStore(), quietLogger())
	s := NewService(tracker, ch, blockingEmbedder{}, newMemoryVectors(), Config{}, quietLogger())

	job, err := s.Submit(context.Background(), []domain.Document{{SourceName: "a.txt", Content: "some text"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	final, err := tracker.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, final.Status)
	assert.Contains(t, final.DocumentStatus[final.Documents[0]].Error, "cancelled")
}
