package rerank

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bull/rag-server/internal/domain"
)

// DefaultConcurrency bounds parallel score calls per query.
const DefaultConcurrency = 4

// Reranker scores candidates independently. It never drops a candidate: one
// whose score call fails keeps its similarity and is marked Degraded.
type Reranker struct {
	client      domain.RerankerClient
	concurrency int
	logger      *slog.Logger
}

// NewReranker creates a Reranker. A nil client passes candidates through in
// similarity order without marking them degraded.
func NewReranker(client domain.RerankerClient, concurrency int, logger *slog.Logger) *Reranker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		client:      client,
		concurrency: concurrency,
		logger:      logger.With("component", "reranker"),
	}
}

// Rerank returns one RankedResult per candidate, ordered by rerank score
// descending with chunk id ascending on ties. Only ctx cancellation fails it.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievedCandidate) ([]domain.RankedResult, error) {
	results := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RankedResult{RetrievedCandidate: c, RerankScore: c.Similarity}
	}
	if r.client == nil || len(candidates) == 0 {
		Sort(results)
		return results, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i := range results {
		g.Go(func() error {
			score, err := r.client.Score(ctx, query, results[i].Text)
			if err != nil {
				results[i].Degraded = true
				r.logger.Warn("Rerank failed, using similarity", "chunk_id", results[i].ChunkID, "error", err)
				return nil
			}
			results[i].RerankScore = score
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	Sort(results)
	return results, nil
}

// Degraded counts results that fell back to similarity.
func Degraded(results []domain.RankedResult) int {
	n := 0
	for _, r := range results {
		if r.Degraded {
			n++
		}
	}
	return n
}

// Sort orders by rerank score descending, then chunk id ascending.
func Sort(results []domain.RankedResult) {
	slices.SortStableFunc(results, func(a, b domain.RankedResult) int {
		switch {
		case a.RerankScore > b.RerankScore:
			return -1
		case a.RerankScore < b.RerankScore:
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
}
