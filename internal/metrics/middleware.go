package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware records request count, latency and the in-flight gauge.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		sw := &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := normalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.Status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// StatusWriter captures the response status code.
type StatusWriter struct {
	http.ResponseWriter
	Status      int
	wroteHeader bool
}

func (sw *StatusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.Status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *StatusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Flush lets streaming MCP responses pass through.
func (sw *StatusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// normalizePath collapses job ids so label cardinality stays bounded.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/v1/ingest/status/") {
		return "/v1/ingest/status/{job_id}"
	}
	if strings.HasPrefix(path, "/mcp") {
		return "/mcp"
	}
	return path
}
