//go:build integration

package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/config"
	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/postgres"
)

func TestPgVectorSearch(t *testing.T) {
	ctx := context.Background()
	client, err := postgres.New(ctx, config.Default().Postgres)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer client.Close()

	table := "test_chunks_" + uuid.NewString()[:8]
	store, err := NewPgVectorStore(client.DB, table, testDimension)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx, client.InTx))
	defer client.DB.ExecContext(ctx, "DROP TABLE "+table)

	now := time.Now().UTC().Truncate(time.Second)
	near := uuid.NewString()
	require.NoError(t, store.Upsert(ctx, near, []float32{1, 0, 0, 0}, domain.ChunkMetadata{DocumentID: "a", Text: "near", IndexedAt: now}))
	require.NoError(t, store.Upsert(ctx, uuid.NewString(), []float32{0, 0, 0, 1}, domain.ChunkMetadata{DocumentID: "b", Text: "far", IndexedAt: now}))

	hits, err := store.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].ChunkID)
	assert.Equal(t, domain.MetricCosineDistance, hits[0].Metric)
	assert.InDelta(t, 1.0, domain.Similarity(hits[0].Metric, hits[0].Score), 1e-6)
	assert.Equal(t, "near", hits[0].Metadata.Text)
}
