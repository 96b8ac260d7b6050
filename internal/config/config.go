// Package config loads application configuration from an optional YAML file
// with RAG_* environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	JobStore    JobStoreConfig    `yaml:"jobStore"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Archive     ArchiveConfig     `yaml:"archive"`
	GitHub      GitHubConfig      `yaml:"github"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // "http" or "stdio"
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChunkingConfig sizes chunks in characters.
type ChunkingConfig struct {
	MaxChunkSize      int     `yaml:"maxChunkSize"`
	OverlapSize       int     `yaml:"overlapSize"`
	BoundaryTolerance float64 `yaml:"boundaryTolerance"`
}

// IngestConfig bounds submissions and background processing.
type IngestConfig struct {
	Concurrency   int   `yaml:"concurrency"`
	MaxDocuments  int   `yaml:"maxDocuments"`
	MaxTotalBytes int64 `yaml:"maxTotalBytes"`
}

// RetrievalConfig holds query-time defaults and limits.
type RetrievalConfig struct {
	TopK              int     `yaml:"topK"`
	MaxTopK           int     `yaml:"maxTopK"`
	MaxContextTokens  int     `yaml:"maxContextTokens"`
	MinSimilarity     float64 `yaml:"minSimilarity"`
	RerankConcurrency int     `yaml:"rerankConcurrency"`
	MaxQueryLength    int     `yaml:"maxQueryLength"`
}

// CallPolicy is the timeout and retry budget for one collaborator.
type CallPolicy struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // openai, gemini, service
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	APIKey    string        `yaml:"apiKey"`
	BaseURL   string        `yaml:"baseUrl"`
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	Call      CallPolicy    `yaml:"call"`
}

// GenerationConfig selects and tunes the answer generator.
type GenerationConfig struct {
	Provider    string     `yaml:"provider"` // openai, gemini
	Model       string     `yaml:"model"`
	APIKey      string     `yaml:"apiKey"`
	Temperature float64    `yaml:"temperature"`
	Call        CallPolicy `yaml:"call"`
}

// RerankerConfig points at a cross-encoder scoring service.
type RerankerConfig struct {
	Enabled bool       `yaml:"enabled"`
	URL     string     `yaml:"url"`
	Call    CallPolicy `yaml:"call"`
}

// VectorStoreConfig selects the vector database.
type VectorStoreConfig struct {
	Backend    string     `yaml:"backend"` // qdrant, pgvector
	Host       string     `yaml:"host"`
	Port       int        `yaml:"port"`
	Collection string     `yaml:"collection"` // qdrant collection or pgvector table
	Distance   string     `yaml:"distance"`   // cosine, dot, euclid (qdrant only)
	Call       CallPolicy `yaml:"call"`
}

// JobStoreConfig selects where ingestion jobs are persisted.
type JobStoreConfig struct {
	Backend string `yaml:"backend"` // memory, redis, postgres
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig controls job lifecycle event publishing.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	JobEventsTopic string   `yaml:"jobEventsTopic"`
}

// ArchiveConfig controls where processed chunks are written.
type ArchiveConfig struct {
	Backend         string `yaml:"backend"` // "", fs, s3
	Dir             string `yaml:"dir"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
}

// GitHubConfig names a markdown source repository.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Path     string `yaml:"path"`
	Schedule string `yaml:"schedule"` // cron spec; empty disables scheduled sync
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided), applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with local-development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Mode:            "http",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:      1000,
			OverlapSize:       100,
			BoundaryTolerance: 0.2,
		},
		Ingest: IngestConfig{
			Concurrency:   4,
			MaxDocuments:  20,
			MaxTotalBytes: 100 << 20,
		},
		Retrieval: RetrievalConfig{
			TopK:              5,
			MaxTopK:           50,
			MaxContextTokens:  3000,
			RerankConcurrency: 4,
			MaxQueryLength:    4000,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			CacheSize: 1024,
			CacheTTL:  10 * time.Minute,
			Call: CallPolicy{
				Timeout:         10 * time.Second,
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.1,
			Call: CallPolicy{
				Timeout:         30 * time.Second,
				MaxAttempts:     2,
				InitialInterval: time.Second,
				MaxInterval:     5 * time.Second,
			},
		},
		Reranker: RerankerConfig{
			URL: "http://localhost:8082",
			Call: CallPolicy{
				Timeout:         5 * time.Second,
				MaxAttempts:     2,
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     time.Second,
			},
		},
		VectorStore: VectorStoreConfig{
			Backend:    "qdrant",
			Host:       "localhost",
			Port:       6334,
			Collection: "documents",
			Distance:   "cosine",
			Call: CallPolicy{
				Timeout:         5 * time.Second,
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		JobStore: JobStoreConfig{
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "rag:job:",
			TTL:       7 * 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "ragserver",
			User:            "ragserver",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			JobEventsTopic: "ingest.job-events",
		},
		Archive: ArchiveConfig{
			Dir:    "processed_docs",
			Region: "us-east-1",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.MaxChunkSize <= 0 {
		errs = append(errs, errors.New("chunking.maxChunkSize must be positive"))
	}
	if c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		errs = append(errs, errors.New("chunking.overlapSize must be >= 0 and < maxChunkSize"))
	}
	if c.Chunking.BoundaryTolerance < 0 || c.Chunking.BoundaryTolerance >= 1 {
		errs = append(errs, errors.New("chunking.boundaryTolerance must be in [0, 1)"))
	}
	if c.Ingest.Concurrency <= 0 {
		errs = append(errs, errors.New("ingest.concurrency must be positive"))
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopK > c.Retrieval.MaxTopK {
		errs = append(errs, errors.New("retrieval.topK must be in [1, maxTopK]"))
	}
	if c.Retrieval.MaxContextTokens <= 0 {
		errs = append(errs, errors.New("retrieval.maxContextTokens must be positive"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding.dimension must be positive"))
	}

	errs = append(errs, oneOf("server.mode", c.Server.Mode, "http", "stdio"))
	errs = append(errs, oneOf("embedding.provider", c.Embedding.Provider, "openai", "gemini", "service"))
	errs = append(errs, oneOf("generation.provider", c.Generation.Provider, "openai", "gemini"))
	errs = append(errs, oneOf("vectorStore.backend", c.VectorStore.Backend, "qdrant", "pgvector"))
	errs = append(errs, oneOf("vectorStore.distance", c.VectorStore.Distance, "cosine", "dot", "euclid"))
	errs = append(errs, oneOf("jobStore.backend", c.JobStore.Backend, "memory", "redis", "postgres"))
	errs = append(errs, oneOf("archive.backend", c.Archive.Backend, "", "fs", "s3"))

	if c.Embedding.Provider == "service" && c.Embedding.BaseURL == "" {
		errs = append(errs, errors.New("embedding.baseUrl is required for the service provider"))
	}
	if c.Reranker.Enabled && c.Reranker.URL == "" {
		errs = append(errs, errors.New("reranker.url is required when the reranker is enabled"))
	}
	if c.Archive.Backend == "s3" && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required for the s3 archive"))
	}

	return errors.Join(errs...)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (allowed: %v)", field, value, allowed)
}
