package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 100, cfg.Chunking.OverlapSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, "memory", cfg.JobStore.Backend)
	assert.Equal(t, 3, cfg.Embedding.Call.MaxAttempts)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
chunking:
  maxChunkSize: 800
  overlapSize: 80
retrieval:
  topK: 8
  maxContextTokens: 2000
embedding:
  call:
    timeout: 3s
    maxAttempts: 5
jobStore:
  backend: redis
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("RAG_RETRIEVAL_TOP_K", "10")
	t.Setenv("RAG_GENERATION_TIMEOUT", "45s")
	t.Setenv("RAG_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 80, cfg.Chunking.OverlapSize)
	assert.Equal(t, 10, cfg.Retrieval.TopK, "env must win over file")
	assert.Equal(t, 2000, cfg.Retrieval.MaxContextTokens)
	assert.Equal(t, 3*time.Second, cfg.Embedding.Call.Timeout)
	assert.Equal(t, 5, cfg.Embedding.Call.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Generation.Call.Timeout)
	assert.Equal(t, "redis", cfg.JobStore.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"overlap not below size": func(c *Config) { c.Chunking.OverlapSize = c.Chunking.MaxChunkSize },
		"unknown vector store":   func(c *Config) { c.VectorStore.Backend = "weaviate" },
		"unknown job store":      func(c *Config) { c.JobStore.Backend = "etcd" },
		"top k above max":        func(c *Config) { c.Retrieval.TopK = c.Retrieval.MaxTopK + 1 },
		"service without url":    func(c *Config) { c.Embedding.Provider = "service" },
		"s3 without bucket":      func(c *Config) { c.Archive.Backend = "s3" },
		"zero concurrency":       func(c *Config) { c.Ingest.Concurrency = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t, "host=localhost port=5432 user=ragserver password=localdev dbname=ragserver sslmode=disable", p.DSN())
}
