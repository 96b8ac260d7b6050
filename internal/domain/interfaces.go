package domain

import "context"

// EmbeddingClient turns text into a fixed-dimension vector.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStoreClient persists vectors and answers nearest-neighbour queries.
type VectorStoreClient interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, meta ChunkMetadata) error
	Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
}

// RerankerClient scores how well text answers query. Higher is better.
type RerankerClient interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Prompt is everything a generator needs to answer a question.
type Prompt struct {
	Query   string
	Context string
	History []Message
}

// Completion is a generator's answer. CitedSources holds the source ids the
// model claims to have used; callers validate them against the context.
type Completion struct {
	Text         string
	CitedSources []int
	Confidence   string
}

// GenerationClient produces an answer for a query from an assembled context.
type GenerationClient interface {
	Generate(ctx context.Context, prompt Prompt) (*Completion, error)
}

// HealthChecker is implemented by collaborators that can report reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}
