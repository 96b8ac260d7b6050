package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/jobs"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func finishedJob() *jobs.Job {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &jobs.Job{
		ID:        "job-42",
		Status:    jobs.StatusPartiallyFailed,
		Documents: []string{"a", "b", "c"},
		DocumentStatus: map[string]jobs.DocumentState{
			"a": {Status: jobs.DocumentSucceeded, Chunks: 1},
			"b": {Status: jobs.DocumentSucceeded, Chunks: 7},
			"c": {Status: jobs.DocumentFailed, Error: "empty"},
		},
		UpdatedAt:   at,
		ErrorDetail: "1 of 3 documents failed",
	}
}

func TestKafkaNotifier_PublishesKeyedEvent(t *testing.T) {
	w := &fakeWriter{}
	n := newKafkaNotifier(w, "ingest.job-events", nil)

	require.NoError(t, n.JobFinished(context.Background(), finishedJob()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "job-42", string(w.msgs[0].Key))

	var ev JobFinishedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, jobs.StatusPartiallyFailed, ev.Status)
	assert.Equal(t, 3, ev.Documents)
	assert.Equal(t, 2, ev.Succeeded)
	assert.Equal(t, 1, ev.Failed)
	assert.Equal(t, 8, ev.Chunks)
	assert.Equal(t, "1 of 3 documents failed", ev.ErrorDetail)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := newKafkaNotifier(&fakeWriter{err: errors.New("broker down")}, "t", nil)
	err := n.JobFinished(context.Background(), finishedJob())
	assert.ErrorContains(t, err, "broker down")
}
