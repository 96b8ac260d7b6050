package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsStatus(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/ingest/status/abc", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/ingest/status/{job_id}", "404"))
	assert.Equal(t, 1.0, got)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.JobSubmitted()
	m.DocumentProcessed("succeeded", 0.1, 3)
	m.QueryFinished("answered", 1, 5)
	m.CacheHit()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestHelpersCount(t *testing.T) {
	m := New()
	m.DocumentProcessed("succeeded", 0.2, 4)
	m.DocumentProcessed("failed", 0.1, 0)
	m.RerankFellBack(2)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChunksIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RerankDegraded))
}

func TestCallFinished(t *testing.T) {
	m := New()
	m.CallFinished("embed", "success", 1)
	m.CallFinished("embed", "exhausted", 3)

	if got := testutil.ToFloat64(m.CollaboratorCallsTotal.WithLabelValues("embed", "exhausted")); got != 1 {
		t.Errorf("exhausted calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CollaboratorRetriesTotal.WithLabelValues("embed")); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}

	var nilMetrics *Metrics
	nilMetrics.CallFinished("embed", "success", 1)
}
