package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides reads RAG_* variables (and the providers' conventional
// API key variables) and overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	envInt("RAG_SERVER_PORT", &cfg.Server.Port)
	envInt("PORT", &cfg.Server.Port)
	envString("RAG_SERVER_MODE", &cfg.Server.Mode)
	if os.Getenv("SERVER_MODE") == "stdio" {
		cfg.Server.Mode = "stdio"
	}

	envString("RAG_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("RAG_LOGGING_FORMAT", &cfg.Logging.Format)

	envInt("RAG_CHUNK_SIZE", &cfg.Chunking.MaxChunkSize)
	envInt("RAG_CHUNK_OVERLAP", &cfg.Chunking.OverlapSize)
	envFloat("RAG_CHUNK_BOUNDARY_TOLERANCE", &cfg.Chunking.BoundaryTolerance)

	envInt("RAG_INGEST_CONCURRENCY", &cfg.Ingest.Concurrency)
	envInt("RAG_INGEST_MAX_DOCUMENTS", &cfg.Ingest.MaxDocuments)

	envInt("RAG_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	envInt("RAG_RETRIEVAL_MAX_CONTEXT_TOKENS", &cfg.Retrieval.MaxContextTokens)
	envFloat("RAG_RETRIEVAL_MIN_SIMILARITY", &cfg.Retrieval.MinSimilarity)

	envString("RAG_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	envString("RAG_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("RAG_EMBEDDING_DIMENSION", &cfg.Embedding.Dimension)
	envString("RAG_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	envCall("RAG_EMBEDDING", &cfg.Embedding.Call)

	envString("RAG_GENERATION_PROVIDER", &cfg.Generation.Provider)
	envString("RAG_GENERATION_MODEL", &cfg.Generation.Model)
	envFloat("RAG_GENERATION_TEMPERATURE", &cfg.Generation.Temperature)
	envCall("RAG_GENERATION", &cfg.Generation.Call)

	envBool("RAG_RERANKER_ENABLED", &cfg.Reranker.Enabled)
	envString("RAG_RERANKER_URL", &cfg.Reranker.URL)
	envCall("RAG_RERANKER", &cfg.Reranker.Call)

	envString("RAG_VECTOR_STORE_BACKEND", &cfg.VectorStore.Backend)
	envString("QDRANT_HOST", &cfg.VectorStore.Host)
	envInt("QDRANT_PORT", &cfg.VectorStore.Port)
	envString("RAG_VECTOR_STORE_COLLECTION", &cfg.VectorStore.Collection)
	envCall("RAG_VECTOR_STORE", &cfg.VectorStore.Call)

	envString("RAG_JOB_STORE_BACKEND", &cfg.JobStore.Backend)
	envString("RAG_REDIS_ADDR", &cfg.Redis.Addr)
	envString("RAG_REDIS_PASSWORD", &cfg.Redis.Password)

	envString("RAG_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("RAG_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("RAG_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("RAG_POSTGRES_USER", &cfg.Postgres.User)
	envString("RAG_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("RAG_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	envBool("RAG_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("RAG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	envString("RAG_ARCHIVE_BACKEND", &cfg.Archive.Backend)
	envString("RAG_ARCHIVE_DIR", &cfg.Archive.Dir)
	envString("RAG_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	envString("AWS_ACCESS_KEY_ID", &cfg.Archive.AccessKeyID)
	envString("AWS_SECRET_ACCESS_KEY", &cfg.Archive.SecretAccessKey)

	envString("GITHUB_TOKEN", &cfg.GitHub.Token)
	envString("RAG_GITHUB_SCHEDULE", &cfg.GitHub.Schedule)

	envBool("RAG_METRICS_ENABLED", &cfg.Metrics.Enabled)

	// Provider keys follow each SDK's own variable names.
	switch cfg.Embedding.Provider {
	case "openai":
		envString("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	case "gemini":
		envString("GEMINI_API_KEY", &cfg.Embedding.APIKey)
	}
	switch cfg.Generation.Provider {
	case "openai":
		envString("OPENAI_API_KEY", &cfg.Generation.APIKey)
	case "gemini":
		envString("GEMINI_API_KEY", &cfg.Generation.APIKey)
	}
}

func envCall(prefix string, p *CallPolicy) {
	envDuration(prefix+"_TIMEOUT", &p.Timeout)
	envInt(prefix+"_MAX_ATTEMPTS", &p.MaxAttempts)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
