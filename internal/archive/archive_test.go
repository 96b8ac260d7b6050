package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
)

func TestFSArchive_WritesRecord(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFSArchive(filepath.Join(dir, "processed"))
	require.NoError(t, err)

	doc := domain.Document{ID: "doc-1", SourceName: "guide.md", Format: domain.FormatMarkdown}
	chunks := []domain.Chunk{
		{ID: "c0", DocumentID: "doc-1", SequenceIndex: 0, Text: "# Guide", StartOffset: 0, EndOffset: 7, HeaderPath: "# Guide"},
		{ID: "c1", DocumentID: "doc-1", SequenceIndex: 1, Text: "body", StartOffset: 5, EndOffset: 9},
	}
	require.NoError(t, a.Archive(context.Background(), "job-1", doc, chunks))

	data, err := os.ReadFile(filepath.Join(dir, "processed", "job-1", "doc-1.json"))
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, "guide.md", rec.SourceName)
	assert.Equal(t, domain.FormatMarkdown, rec.Format)
	require.Len(t, rec.Chunks, 2)
	assert.Equal(t, "# Guide", rec.Chunks[0].HeaderPath)
	assert.Equal(t, 5, rec.Chunks[1].StartOffset)

	_, err = os.Stat(filepath.Join(dir, "processed", "job-1", "doc-1.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFSArchive_OverwritesOnReingest(t *testing.T) {
	a, err := NewFSArchive(t.TempDir())
	require.NoError(t, err)

	doc := domain.Document{ID: "d", SourceName: "a.txt", Format: domain.FormatText}
	require.NoError(t, a.Archive(context.Background(), "j", doc, []domain.Chunk{{ID: "1"}, {ID: "2"}}))
	require.NoError(t, a.Archive(context.Background(), "j", doc, []domain.Chunk{{ID: "1"}}))

	data, err := os.ReadFile(filepath.Join(a.dir, "j", "d.json"))
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Len(t, rec.Chunks, 1)
}

func TestNewS3Archive_RequiresBucket(t *testing.T) {
	_, err := NewS3Archive(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
