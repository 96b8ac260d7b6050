// Package retrieval embeds a query and turns vector-store hits into ranked
// candidates.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bull/rag-server/internal/domain"
)

// Retriever finds the chunks most similar to a query.
type Retriever struct {
	embedder      domain.EmbeddingClient
	store         domain.VectorStoreClient
	minSimilarity float64
	filter        bool
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMinSimilarity drops candidates scoring below threshold.
func WithMinSimilarity(threshold float64) Option {
	return func(r *Retriever) {
		r.minSimilarity = threshold
		r.filter = true
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder domain.EmbeddingClient, store domain.VectorStoreClient, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger.With("component", "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topK candidates sorted by similarity descending,
// chunk id ascending on ties. An empty corpus yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Invalid("query", "must not be empty")
	}
	if topK <= 0 {
		return nil, domain.Invalid("top_k", "must be positive, got %d", topK)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, classify(ctx, domain.ErrEmbeddingUnavailable, "embed query", err)
	}

	hits, err := r.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, classify(ctx, domain.ErrVectorStoreUnavailable, "search", err)
	}

	candidates := make([]domain.RetrievedCandidate, 0, len(hits))
	for _, h := range hits {
		sim := domain.Similarity(h.Metric, h.Score)
		if r.filter && sim < r.minSimilarity {
			continue
		}
		candidates = append(candidates, domain.RetrievedCandidate{
			ChunkID:       h.ChunkID,
			DocumentID:    h.Metadata.DocumentID,
			SourceName:    h.Metadata.SourceName,
			Text:          h.Metadata.Text,
			SequenceIndex: h.Metadata.SequenceIndex,
			Offsets:       h.Metadata.Offsets,
			Similarity:    sim,
		})
	}

	slices.SortStableFunc(candidates, func(a, b domain.RetrievedCandidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	r.logger.Debug("Retrieved candidates", "hits", len(hits), "candidates", len(candidates))
	return candidates, nil
}

// classify makes sure a collaborator failure carries its sentinel.
func classify(ctx context.Context, sentinel error, op string, err error) error {
	if errors.Is(err, sentinel) || domain.IsValidation(err) || ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
