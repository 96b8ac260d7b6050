// Package ingestion accepts document submissions and indexes them in the
// background: chunk, embed, upsert, and report each document's outcome to
// the job tracker.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/rag-server/internal/chunker"
	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
	"github.com/bull/rag-server/internal/metrics"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("ingestion service is closed")

// Defaults applied when Config leaves a field at zero.
const (
	DefaultConcurrency   = 4
	DefaultMaxDocuments  = 20
	DefaultMaxTotalBytes = 100 << 20
)

// Archiver keeps a copy of the chunks produced for a document.
type Archiver interface {
	Archive(ctx context.Context, jobID string, doc domain.Document, chunks []domain.Chunk) error
}

// DocumentRemover deletes every stored chunk of a document, so re-ingesting
// a shorter version leaves no stale tail behind.
type DocumentRemover interface {
	DeleteDocument(ctx context.Context, documentID string) error
}

// Config bounds submissions and background work.
type Config struct {
	Concurrency   int
	MaxDocuments  int
	MaxTotalBytes int64
}

// Service runs ingestion jobs.
type Service struct {
	tracker  *jobs.Tracker
	chunker  *chunker.Chunker
	embedder domain.EmbeddingClient
	store    domain.VectorStoreClient
	archiver Archiver
	remover  DocumentRemover
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Service.
type Option func(*Service)

// WithArchiver writes each document's chunks to a.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithDocumentRemover clears a document's previous chunks before indexing.
func WithDocumentRemover(r DocumentRemover) Option {
	return func(s *Service) { s.remover = r }
}

// WithMetrics records ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service. Background jobs run until Close.
func NewService(tracker *jobs.Tracker, ch *chunker.Chunker, embedder domain.EmbeddingClient, store domain.VectorStoreClient, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxDocuments
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		tracker:  tracker,
		chunker:  ch,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "ingestion"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a job for docs and returns it queued; indexing continues in
// the background. Documents without an ID get one derived from their source
// name and content, and a missing format is inferred from the source name.
// Per-document problems such as empty content fail that document only.
func (s *Service) Submit(ctx context.Context, docs []domain.Document) (*jobs.Job, error) {
	if len(docs) == 0 {
		return nil, domain.Invalid("documents", "at least one document is required")
	}
	if len(docs) > s.cfg.MaxDocuments {
		return nil, domain.Invalid("documents", "%d documents submitted, limit is %d", len(docs), s.cfg.MaxDocuments)
	}

	var total int64
	prepared := make([]domain.Document, len(docs))
	refs := make([]jobs.DocumentRef, len(docs))
	for i, d := range docs {
		total += int64(len(d.Content))
		if d.SourceName == "" {
			return nil, domain.Invalid("source_name", "document %d has no source name", i)
		}
		if d.Format == "" {
			d.Format = domain.FormatFromName(d.SourceName)
		}
		if d.ID == "" {
			d.ID = chunker.DocumentID(d.SourceName, d.Content)
		}
		prepared[i] = d
		refs[i] = jobs.DocumentRef{ID: d.ID, SourceName: d.SourceName}
	}
	if total > s.cfg.MaxTotalBytes {
		return nil, domain.Invalid("documents", "total size %d bytes exceeds limit of %d", total, s.cfg.MaxTotalBytes)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	job, err := s.tracker.Submit(ctx, refs)
	if err != nil {
		s.wg.Done()
		return nil, err
	}
	s.metrics.JobSubmitted()

	go func() {
		defer s.wg.Done()
		s.run(job.ID, prepared)
	}()

	return job, nil
}

// Get returns a snapshot of a job.
func (s *Service) Get(ctx context.Context, jobID string) (*jobs.Job, error) {
	return s.tracker.Get(ctx, jobID)
}

// Close stops accepting submissions and waits for running jobs. If ctx ends
// first, in-flight documents are cancelled and recorded as failed.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("ingestion shutdown: %w", ctx.Err())
	}
}

func (s *Service) run(jobID string, docs []domain.Document) {
	started := time.Now()
	s.logger.Info("Starting ingestion", "job_id", jobID, "documents", len(docs))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i := range docs {
		g.Go(func() error {
			s.process(s.ctx, jobID, &docs[i])
			return nil
		})
	}
	_ = g.Wait()

	job, err := s.tracker.Get(context.WithoutCancel(s.ctx), jobID)
	if err != nil {
		s.logger.Error("Failed to read finished job", "job_id", jobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		s.metrics.JobFinished(string(job.Status))
	}
	s.logger.Info("Ingestion complete",
		"job_id", jobID,
		"status", job.Status,
		"duration", time.Since(started),
	)
}

// process indexes one document and records its outcome. Tracker updates use
// a context detached from shutdown so the outcome is still persisted.
func (s *Service) process(ctx context.Context, jobID string, doc *domain.Document) {
	started := time.Now()
	persist := context.WithoutCancel(ctx)
	log := s.logger.With("job_id", jobID, "document_id", doc.ID, "source", doc.SourceName)

	if _, err := s.tracker.Start(persist, jobID, doc.ID); err != nil {
		log.Error("Failed to mark document processing", "error", err)
		s.metrics.JobUpdateFailed()
	}

	chunks, err := s.index(ctx, jobID, doc)

	outcome := jobs.Succeeded(chunks)
	label := "succeeded"
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("ingestion cancelled: %w", err)
		}
		outcome = jobs.Failed(err.Error())
		label = "failed"
		log.Warn("Failed to index document", "error", err)
	} else {
		log.Info("Indexed document", "chunks", chunks)
	}
	s.metrics.DocumentProcessed(label, time.Since(started).Seconds(), chunks)

	if _, err := s.tracker.Advance(persist, jobID, doc.ID, outcome); err != nil {
		log.Error("Failed to record document outcome", "outcome", label, "error", err)
		s.metrics.JobUpdateFailed()
	}
}

// index returns the number of chunks stored. The document's content is
// released once it has been chunked.
func (s *Service) index(ctx context.Context, jobID string, doc *domain.Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	chunks, err := s.chunker.Chunk(*doc)
	doc.Content = ""
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}

	if s.remover != nil {
		if err := s.remover.DeleteDocument(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("clear previous chunks: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		vector, err := s.embedder.Embed(ctx, chunker.EmbeddingText(c))
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", c.SequenceIndex, err)
		}
		err = s.store.Upsert(ctx, c.ID, vector, domain.ChunkMetadata{
			DocumentID:    doc.ID,
			SourceName:    doc.SourceName,
			Format:        doc.Format,
			JobID:         jobID,
			SequenceIndex: c.SequenceIndex,
			Text:          c.Text,
			HeaderPath:    c.HeaderPath,
			Offsets:       c.Offsets(),
			IndexedAt:     now,
		})
		if err != nil {
			return 0, fmt.Errorf("upsert chunk %d: %w", c.SequenceIndex, err)
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, jobID, *doc, chunks); err != nil {
			s.logger.Warn("Failed to archive chunks", "job_id", jobID, "document_id", doc.ID, "error", err)
		}
	}

	return len(chunks), nil
}
