package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ingest", r.URL.Path)
		var body struct {
			Documents []apiDocument `json:"documents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Documents, 1)
		assert.Equal(t, "markdown", body.Documents[0].Format)

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"job_id":"j1","status":"queued","files_submitted":1}`))
	}))
	defer srv.Close()

	job, err := newClient(srv.URL, time.Second).Submit(context.Background(), []domain.Document{
		{SourceName: "faq.md", Format: domain.FormatMarkdown, Content: "# FAQ"},
	})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, jobs.StatusQueued, job.Status)
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"query: must not be empty"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, time.Second).Ask(context.Background(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestClient_Wait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "processing"
		if calls.Add(1) >= 3 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "j1", "status": status})
	}))
	defer srv.Close()

	job, err := newClient(srv.URL, time.Second).Wait(context.Background(), "j1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.EqualValues(t, 3, calls.Load())
}
