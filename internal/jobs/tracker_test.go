package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func refs(ids ...string) []DocumentRef {
	out := make([]DocumentRef, len(ids))
	for i, id := range ids {
		out[i] = DocumentRef{ID: id, SourceName: id + ".txt"}
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*Job
}

func (n *recordingNotifier) JobFinished(_ context.Context, job *Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

// failingStore fails every Update after the first allowed ones.
type failingStore struct {
	*MemoryStore
	failUpdates bool
}

func (s *failingStore) Update(ctx context.Context, job *Job) error {
	if s.failUpdates {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Update(ctx, job)
}

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	tr := NewTracker(NewMemoryStore(), quietLogger(), WithNotifier(notifier))

	job, err := tr.Submit(ctx, refs("d1", "d2"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, []string{"d1", "d2"}, job.Documents)

	job, err = tr.Start(ctx, job.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, job.Status)

	job, err = tr.Advance(ctx, job.ID, "d1", Succeeded(4))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, 4, job.DocumentStatus["d1"].Chunks)

	job, err = tr.Advance(ctx, job.ID, "d2", Succeeded(1))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Empty(t, job.ErrorDetail)

	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, StatusCompleted, notifier.jobs[0].Status)
}

func TestTracker_PartialAndTotalFailure(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), quietLogger())

	job, err := tr.Submit(ctx, refs("ok", "bad"))
	require.NoError(t, err)
	_, err = tr.Advance(ctx, job.ID, "ok", Succeeded(2))
	require.NoError(t, err)
	job, err = tr.Advance(ctx, job.ID, "bad", Failed("empty document"))
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFailed, job.Status)
	assert.Equal(t, "empty document", job.DocumentStatus["bad"].Error)
	assert.Equal(t, "1 of 2 documents failed", job.ErrorDetail)

	job, err = tr.Submit(ctx, refs("x"))
	require.NoError(t, err)
	job, err = tr.Advance(ctx, job.ID, "x", Failed("boom"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
}

// TestTracker_NoRegression checks that terminal jobs and resolved documents
// reject further updates.
func TestTracker_NoRegression(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), quietLogger())

	job, err := tr.Submit(ctx, refs("d1", "d2"))
	require.NoError(t, err)

	_, err = tr.Advance(ctx, job.ID, "d1", Succeeded(1))
	require.NoError(t, err)

	_, err = tr.Advance(ctx, job.ID, "d1", Failed("late"))
	assert.ErrorIs(t, err, ErrDocumentResolved)

	_, err = tr.Start(ctx, job.ID, "d1")
	assert.ErrorIs(t, err, ErrDocumentResolved)

	_, err = tr.Advance(ctx, job.ID, "nope", Succeeded(1))
	assert.ErrorIs(t, err, ErrUnknownDocument)

	_, err = tr.Advance(ctx, job.ID, "d2", Succeeded(1))
	require.NoError(t, err)

	_, err = tr.Advance(ctx, job.ID, "d2", Succeeded(1))
	assert.ErrorIs(t, err, ErrJobFinalized)

	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestTracker_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), quietLogger())

	job, err := tr.Submit(ctx, refs("d1"))
	require.NoError(t, err)
	_, err = tr.Start(ctx, job.ID, "d1")
	require.NoError(t, err)
	job, err = tr.Start(ctx, job.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, DocumentProcessing, job.DocumentStatus["d1"].Status)
}

// TestTracker_ConcurrentAdvance resolves many documents of one job in parallel
// and expects no lost updates.
func TestTracker_ConcurrentAdvance(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), quietLogger())

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%02d", i)
	}
	job, err := tr.Submit(ctx, refs(ids...))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := Succeeded(1)
			if i%10 == 0 {
				outcome = Failed("bad input")
			}
			_, err := tr.Advance(ctx, job.ID, id, outcome)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	counts := got.Counts()
	assert.Equal(t, 45, counts[DocumentSucceeded])
	assert.Equal(t, 5, counts[DocumentFailed])
	assert.Equal(t, StatusPartiallyFailed, got.Status)
}

func TestTracker_Validation(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), quietLogger())

	_, err := tr.Submit(ctx, nil)
	assert.True(t, domain.IsValidation(err))

	_, err = tr.Submit(ctx, []DocumentRef{{ID: "a"}, {ID: "a"}})
	assert.True(t, domain.IsValidation(err))

	_, err = tr.Submit(ctx, []DocumentRef{{SourceName: "x"}})
	assert.True(t, domain.IsValidation(err))
}

func TestTracker_GetUnknown(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), quietLogger())
	_, err := tr.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestTracker_StoreFailure verifies a failed persist is surfaced and the
// stored job is left unchanged.
func TestTracker_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	tr := NewTracker(store, quietLogger())

	job, err := tr.Submit(ctx, refs("d1"))
	require.NoError(t, err)

	store.failUpdates = true
	_, err = tr.Advance(ctx, job.ID, "d1", Succeeded(3))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, DocumentPending, got.DocumentStatus["d1"].Status)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
