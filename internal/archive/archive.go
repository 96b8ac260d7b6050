// Package archive keeps a JSON copy of the chunks produced for every ingested
// document, on local disk or in an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bull/rag-server/internal/domain"
)

// Record is the archived form of one document.
type Record struct {
	JobID      string        `json:"job_id"`
	DocumentID string        `json:"document_id"`
	SourceName string        `json:"source_name"`
	Format     domain.Format `json:"format"`
	ArchivedAt time.Time     `json:"archived_at"`
	Chunks     []ChunkRecord `json:"chunks"`
}

// ChunkRecord is one archived chunk.
type ChunkRecord struct {
	ID            string `json:"id"`
	SequenceIndex int    `json:"sequence_index"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	HeaderPath    string `json:"header_path,omitempty"`
	Oversized     bool   `json:"oversized,omitempty"`
	Text          string `json:"text"`
}

func newRecord(jobID string, doc domain.Document, chunks []domain.Chunk) Record {
	r := Record{
		JobID:      jobID,
		DocumentID: doc.ID,
		SourceName: doc.SourceName,
		Format:     doc.Format,
		ArchivedAt: time.Now().UTC(),
		Chunks:     make([]ChunkRecord, len(chunks)),
	}
	for i, c := range chunks {
		r.Chunks[i] = ChunkRecord{
			ID:            c.ID,
			SequenceIndex: c.SequenceIndex,
			StartOffset:   c.StartOffset,
			EndOffset:     c.EndOffset,
			HeaderPath:    c.HeaderPath,
			Oversized:     c.Oversized,
			Text:          c.Text,
		}
	}
	return r
}

// key is the relative location of a record: <job>/<document>.json.
func key(jobID, documentID string) string {
	return path.Join(jobID, documentID+".json")
}

// FSArchive writes records under a local directory.
type FSArchive struct {
	dir string
}

// NewFSArchive creates dir if needed.
func NewFSArchive(dir string) (*FSArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FSArchive{dir: dir}, nil
}

func (a *FSArchive) Archive(_ context.Context, jobID string, doc domain.Document, chunks []domain.Chunk) error {
	data, err := json.MarshalIndent(newRecord(jobID, doc, chunks), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	target := filepath.Join(a.dir, filepath.FromSlash(key(jobID, doc.ID)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	// Write to a temp file first so readers never see a partial record.
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// S3Config locates the bucket. Empty credentials use the default AWS chain.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Archive writes records to an S3-compatible bucket.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archive loads AWS configuration and creates the client.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *S3Archive) Archive(ctx context.Context, jobID string, doc domain.Document, chunks []domain.Chunk) error {
	data, err := json.Marshal(newRecord(jobID, doc, chunks))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	objectKey := path.Join(a.prefix, key(jobID, doc.ID))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, objectKey, err)
	}
	return nil
}
