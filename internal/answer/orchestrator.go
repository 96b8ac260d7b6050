// Package answer runs the query path: retrieve, rerank, assemble a context,
// generate, and attach citations.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/rag-server/internal/assembler"
	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/metrics"
	"github.com/bull/rag-server/internal/rerank"
)

// NoInformationText is returned when retrieval finds nothing to answer from.
const NoInformationText = "I don't have relevant information to answer this question. Please try rephrasing or ask about a different topic."

// Defaults applied when Config leaves a field at zero.
const (
	DefaultTopK             = 5
	DefaultMaxTopK          = 50
	DefaultMaxContextTokens = 3000
	DefaultMaxQueryLength   = 4000
)

// Retriever finds candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedCandidate, error)
}

// Reranker orders candidates by relevance to a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.RetrievedCandidate) ([]domain.RankedResult, error)
}

// Config holds query defaults and limits.
type Config struct {
	TopK             int
	MaxTopK          int
	MaxContextTokens int
	MaxQueryLength   int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = DefaultMaxTopK
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = DefaultMaxQueryLength
	}
	return c
}

// Orchestrator answers chat queries.
type Orchestrator struct {
	retriever Retriever
	reranker  Reranker
	generator domain.GenerationClient
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewOrchestrator wires the query path. m may be nil.
func NewOrchestrator(retriever Retriever, reranker Reranker, generator domain.GenerationClient, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Answer runs one query end to end. A corpus with nothing relevant yields a
// canned answer with NoInformation set and no generation call.
func (o *Orchestrator) Answer(ctx context.Context, q domain.ChatQuery) (*domain.Answer, error) {
	started := time.Now()
	q, err := o.normalize(q)
	if err != nil {
		return nil, err
	}

	candidates, err := o.retriever.Retrieve(ctx, q.Text, q.TopK)
	if err != nil {
		return nil, o.fail(ctx, started, 0, fmt.Errorf("retrieve: %w", err))
	}
	if len(candidates) == 0 {
		o.logger.Info("No candidates for query", "top_k", q.TopK)
		return o.noInformation(started, 0), nil
	}

	ranked, err := o.reranker.Rerank(ctx, q.Text, candidates)
	if err != nil {
		return nil, o.fail(ctx, started, len(candidates), fmt.Errorf("rerank: %w", err))
	}
	degraded := rerank.Degraded(ranked)
	o.metrics.RerankFellBack(degraded)

	assembly := assembler.Assemble(ranked, q.MaxContextTokens)
	if err := ctx.Err(); err != nil {
		return nil, o.fail(ctx, started, len(candidates), err)
	}
	if len(assembly.Sources) == 0 {
		o.logger.Info("No usable context for query", "candidates", len(candidates))
		return o.noInformation(started, len(candidates)), nil
	}

	completion, err := o.generator.Generate(ctx, domain.Prompt{
		Query:   q.Text,
		Context: assembly.Context,
		History: q.History,
	})
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		return nil, o.fail(ctx, started, len(candidates), fmt.Errorf("generate: %w", err))
	}

	cited := validCitations(completion.CitedSources, &assembly)
	citations := make([]domain.Citation, len(assembly.Citations))
	for i, c := range assembly.Citations {
		c.Cited = anyCited(c.SourceIDs, cited)
		citations[i] = c
	}

	used := assembly.UsedChunkIDs
	if used == nil {
		used = []string{}
	}

	o.metrics.QueryFinished("answered", time.Since(started).Seconds(), len(candidates))
	o.logger.Info("Answered query",
		"candidates", len(candidates),
		"sources", len(assembly.Sources),
		"cited", len(cited),
		"context_tokens", assembly.Tokens,
		"degraded", degraded,
		"duration", time.Since(started),
	)

	return &domain.Answer{
		Text:         completion.Text,
		Citations:    citations,
		UsedChunkIDs: used,
		Confidence:   completion.Confidence,
		Degraded:     degraded > 0,
	}, nil
}

func (o *Orchestrator) noInformation(started time.Time, candidates int) *domain.Answer {
	o.metrics.QueryFinished("no_information", time.Since(started).Seconds(), candidates)
	return &domain.Answer{
		Text:          NoInformationText,
		Citations:     []domain.Citation{},
		UsedChunkIDs:  []string{},
		NoInformation: true,
	}
}

func (o *Orchestrator) normalize(q domain.ChatQuery) (domain.ChatQuery, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, domain.Invalid("query", "must not be empty")
	}
	if n := utf8.RuneCountInString(q.Text); n > o.cfg.MaxQueryLength {
		return q, domain.Invalid("query", "is %d characters, limit is %d", n, o.cfg.MaxQueryLength)
	}
	if q.TopK == 0 {
		q.TopK = o.cfg.TopK
	}
	if q.TopK < 1 || q.TopK > o.cfg.MaxTopK {
		return q, domain.Invalid("top_k", "must be between 1 and %d, got %d", o.cfg.MaxTopK, q.TopK)
	}
	if q.MaxContextTokens == 0 {
		q.MaxContextTokens = o.cfg.MaxContextTokens
	}
	if q.MaxContextTokens < 0 {
		return q, domain.Invalid("max_context_tokens", "must be positive, got %d", q.MaxContextTokens)
	}
	return q, nil
}

// fail records a failed query. Cancellation by the caller wins over
// whatever error the stage produced.
func (o *Orchestrator) fail(ctx context.Context, started time.Time, candidates int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.metrics.QueryFinished("cancelled", time.Since(started).Seconds(), candidates)
		return ctxErr
	}
	o.metrics.QueryFinished("error", time.Since(started).Seconds(), candidates)
	o.logger.Error("Query failed", "error", err)
	return err
}

// validCitations keeps the generator's source ids that exist in the context.
func validCitations(ids []int, a *assembler.Assembly) map[int]bool {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		if a.HasSource(id) {
			out[id] = true
		}
	}
	return out
}

func anyCited(ids []int, cited map[int]bool) bool {
	for _, id := range ids {
		if cited[id] {
			return true
		}
	}
	return false
}
