package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthTimeout bounds the whole readiness probe.
const healthTimeout = 3 * time.Second

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// handleHealth checks every registered dependency concurrently. Any failure
// makes the service unhealthy (503).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "healthy",
		Components: make(map[string]ComponentHealth, len(s.health)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, checker := range s.health {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := checker.Health(ctx)
			result := ComponentHealth{
				Status:  "up",
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Status = "down"
				result.Error = err.Error()
			}
			mu.Lock()
			resp.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "up" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	s.writeJSON(w, status, resp)
}
