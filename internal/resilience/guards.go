package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/rag-server/internal/domain"
)

// unavailable classifies a failed call: validation and cancellation pass
// through, anything else becomes the collaborator's unavailable error.
func unavailable(ctx context.Context, sentinel, err error) error {
	if err == nil || domain.IsValidation(err) || errors.Is(err, sentinel) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Embedder wraps an EmbeddingClient with the call policy.
type Embedder struct {
	next   domain.EmbeddingClient
	policy Policy
	logger *slog.Logger
}

// GuardEmbedder returns next bounded by p.
func GuardEmbedder(next domain.EmbeddingClient, p Policy, logger *slog.Logger) *Embedder {
	return &Embedder{next: next, policy: p, logger: logger}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := Call(ctx, "embed", e.policy, e.logger, func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
	return v, unavailable(ctx, domain.ErrEmbeddingUnavailable, err)
}

// DocumentStore is a vector store that can also drop all chunks of a document.
type DocumentStore interface {
	domain.VectorStoreClient
	DeleteDocument(ctx context.Context, documentID string) error
}

// VectorStore wraps a DocumentStore with the call policy.
type VectorStore struct {
	next   DocumentStore
	policy Policy
	logger *slog.Logger
}

// GuardVectorStore returns next bounded by p.
func GuardVectorStore(next DocumentStore, p Policy, logger *slog.Logger) *VectorStore {
	return &VectorStore{next: next, policy: p, logger: logger}
}

func (s *VectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, meta domain.ChunkMetadata) error {
	_, err := Call(ctx, "vector upsert", s.policy, s.logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.Upsert(ctx, chunkID, vector, meta)
	})
	return unavailable(ctx, domain.ErrVectorStoreUnavailable, err)
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	hits, err := Call(ctx, "vector search", s.policy, s.logger, func(ctx context.Context) ([]domain.SearchHit, error) {
		return s.next.Search(ctx, vector, k)
	})
	return hits, unavailable(ctx, domain.ErrVectorStoreUnavailable, err)
}

func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := Call(ctx, "vector delete", s.policy, s.logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.DeleteDocument(ctx, documentID)
	})
	return unavailable(ctx, domain.ErrVectorStoreUnavailable, err)
}

// Reranker wraps a RerankerClient with the call policy.
type Reranker struct {
	next   domain.RerankerClient
	policy Policy
	logger *slog.Logger
}

// GuardReranker returns next bounded by p.
func GuardReranker(next domain.RerankerClient, p Policy, logger *slog.Logger) *Reranker {
	return &Reranker{next: next, policy: p, logger: logger}
}

func (r *Reranker) Score(ctx context.Context, query, text string) (float64, error) {
	v, err := Call(ctx, "rerank", r.policy, r.logger, func(ctx context.Context) (float64, error) {
		return r.next.Score(ctx, query, text)
	})
	return v, unavailable(ctx, domain.ErrRerankerUnavailable, err)
}

// Generator wraps a GenerationClient with the call policy.
type Generator struct {
	next   domain.GenerationClient
	policy Policy
	logger *slog.Logger
}

// GuardGenerator returns next bounded by p.
func GuardGenerator(next domain.GenerationClient, p Policy, logger *slog.Logger) *Generator {
	return &Generator{next: next, policy: p, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (*domain.Completion, error) {
	c, err := Call(ctx, "generate", g.policy, g.logger, func(ctx context.Context) (*domain.Completion, error) {
		return g.next.Generate(ctx, prompt)
	})
	return c, unavailable(ctx, domain.ErrGenerationUnavailable, err)
}
