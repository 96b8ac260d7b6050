package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rag-server/internal/domain"
)

var (
	// ErrJobFinalized is returned when mutating a job in a terminal state.
	ErrJobFinalized = errors.New("job already finalized")

	// ErrDocumentResolved is returned when a document already has an outcome.
	ErrDocumentResolved = errors.New("document already resolved")

	// ErrUnknownDocument is returned for a document id not submitted with the job.
	ErrUnknownDocument = errors.New("document not part of job")
)

// Notifier is told when a job reaches a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job *Job) error
}

// Tracker is the only writer of job records. Updates to one job are
// serialized; different jobs proceed in parallel.
type Tracker struct {
	store    Store
	locks    *keyedMutex
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotifier publishes terminal job snapshots.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker backed by store.
func NewTracker(store Store, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger.With("component", "job-tracker"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit records a new queued job for docs and returns it.
func (t *Tracker) Submit(ctx context.Context, docs []DocumentRef) (*Job, error) {
	if len(docs) == 0 {
		return nil, domain.Invalid("documents", "at least one document is required")
	}

	now := t.now().UTC()
	job := &Job{
		ID:             uuid.New().String(),
		Status:         StatusQueued,
		Documents:      make([]string, 0, len(docs)),
		DocumentStatus: make(map[string]DocumentState, len(docs)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, d := range docs {
		if d.ID == "" {
			return nil, domain.Invalid("documents", "document id is required")
		}
		if _, dup := job.DocumentStatus[d.ID]; dup {
			return nil, domain.Invalid("documents", "duplicate document %q", d.SourceName)
		}
		job.Documents = append(job.Documents, d.ID)
		job.DocumentStatus[d.ID] = DocumentState{
			Status:     DocumentPending,
			SourceName: d.SourceName,
			UpdatedAt:  now,
		}
	}

	if err := t.store.Create(ctx, job); err != nil {
		t.logger.Error("Failed to persist job", "job_id", job.ID, "error", err)
		return nil, fmt.Errorf("%w: create job: %v", domain.ErrStoreUnavailable, err)
	}

	t.logger.Info("Job submitted", "job_id", job.ID, "documents", len(docs))
	return job.Clone(), nil
}

// Start marks a pending document as processing. Starting a document that is
// already processing is a no-op.
func (t *Tracker) Start(ctx context.Context, jobID, docID string) (*Job, error) {
	return t.update(ctx, jobID, func(job *Job, now time.Time) error {
		st, ok := job.DocumentStatus[docID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
		}
		switch {
		case st.Status.Resolved():
			return fmt.Errorf("%w: %s", ErrDocumentResolved, docID)
		case st.Status == DocumentProcessing:
			return nil
		}
		st.Status = DocumentProcessing
		st.UpdatedAt = now
		job.DocumentStatus[docID] = st
		return nil
	})
}

// Advance records the terminal outcome of one document and recomputes the
// job status. An error means the outcome was not recorded.
func (t *Tracker) Advance(ctx context.Context, jobID, docID string, outcome Outcome) (*Job, error) {
	return t.update(ctx, jobID, func(job *Job, now time.Time) error {
		st, ok := job.DocumentStatus[docID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
		}
		if st.Status.Resolved() {
			return fmt.Errorf("%w: %s", ErrDocumentResolved, docID)
		}
		if outcome.Succeeded {
			st.Status = DocumentSucceeded
			st.Chunks = outcome.Chunks
		} else {
			st.Status = DocumentFailed
			st.Error = outcome.Reason
		}
		st.UpdatedAt = now
		job.DocumentStatus[docID] = st
		return nil
	})
}

// Get returns a snapshot of the job. Unknown ids yield domain.ErrNotFound.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Job, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, t.storeErr("load job", jobID, err)
	}
	return job, nil
}

// update applies fn to a fresh copy of the job under the job's lock, derives
// the aggregate status and persists the result.
func (t *Tracker) update(ctx context.Context, jobID string, fn func(job *Job, now time.Time) error) (*Job, error) {
	unlock := t.locks.Lock(jobID)
	defer unlock()

	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, t.storeErr("load job", jobID, err)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinalized, jobID, job.Status)
	}

	now := t.now().UTC()
	if err := fn(job, now); err != nil {
		return nil, err
	}

	previous := job.Status
	job.Status = Aggregate(job.DocumentStatus)
	job.ErrorDetail = errorDetail(job.Status, job.DocumentStatus)
	job.UpdatedAt = now

	if err := t.store.Update(ctx, job); err != nil {
		t.logger.Error("Failed to persist job update", "job_id", jobID, "status", job.Status, "error", err)
		return nil, fmt.Errorf("%w: update job %s: %v", domain.ErrStoreUnavailable, jobID, err)
	}

	if previous != job.Status {
		t.logger.Info("Job status changed", "job_id", jobID, "from", previous, "to", job.Status)
	}
	if job.Status.Terminal() && t.notifier != nil {
		if err := t.notifier.JobFinished(ctx, job.Clone()); err != nil {
			t.logger.Warn("Failed to publish job event", "job_id", jobID, "error", err)
		}
	}

	return job, nil
}

func (t *Tracker) storeErr(op, jobID string, err error) error {
	if errors.Is(err, ErrJobNotFound) {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	t.logger.Error("Job store error", "op", op, "job_id", jobID, "error", err)
	return fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, op, jobID, err)
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is held and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
