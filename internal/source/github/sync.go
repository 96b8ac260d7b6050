package github

import (
	"context"
	"fmt"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

// Submitter queues documents for ingestion.
type Submitter interface {
	Submit(ctx context.Context, docs []domain.Document) (*jobs.Job, error)
}

// SyncResult lists the jobs a sync queued.
type SyncResult struct {
	CommitSHA string
	Documents int
	JobIDs    []string
}

// Sync fetches the repository and submits its documents in batches of at
// most batchSize. Documents whose content is unchanged keep their ids, so
// a re-sync replaces their chunks rather than duplicating them.
func Sync(ctx context.Context, f *Fetcher, s Submitter, batchSize int) (*SyncResult, error) {
	snap, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = len(snap.Documents)
	}

	res := &SyncResult{CommitSHA: snap.CommitSHA, Documents: len(snap.Documents)}
	for start := 0; start < len(snap.Documents); start += batchSize {
		end := min(start+batchSize, len(snap.Documents))
		job, err := s.Submit(ctx, snap.Documents[start:end])
		if err != nil {
			return res, fmt.Errorf("submit documents %d-%d: %w", start, end-1, err)
		}
		res.JobIDs = append(res.JobIDs, job.ID)
	}
	f.logger.Info("Sync submitted", "commit", res.CommitSHA, "documents", res.Documents, "jobs", len(res.JobIDs))
	return res, nil
}
