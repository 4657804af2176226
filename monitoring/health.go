package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ringdht/cluster"
)

type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthChecker reports on the ring's membership and a cache round trip
// through one of its live nodes.
type HealthChecker struct {
	ring *cluster.Ring
}

func NewHealthChecker(ring *cluster.Ring) *HealthChecker {
	return &HealthChecker{ring: ring}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		nodes := h.ring.Describe()

		mu.Lock()
		defer mu.Unlock()
		if len(nodes) == 0 {
			status.Components["ring"] = ComponentHealth{
				Status:  "unhealthy",
				Details: "no backing cache servers joined",
			}
			status.Status = "degraded"
		} else {
			status.Components["ring"] = ComponentHealth{
				Status:  "healthy",
				Details: fmt.Sprintf("%d nodes available", len(nodes)),
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		_, _, err := h.ring.Get(ctx, "__health_check__")
		latency := time.Since(start)

		mu.Lock()
		defer mu.Unlock()
		if err != nil && err != cluster.ErrEmptyRing {
			status.Components["cache"] = ComponentHealth{
				Status:  "unhealthy",
				Details: err.Error(),
				Latency: latency.String(),
			}
			status.Status = "degraded"
		} else {
			status.Components["cache"] = ComponentHealth{
				Status:  "healthy",
				Latency: latency.String(),
			}
		}
	}()

	wg.Wait()
	return status
}

func (h *HealthChecker) Handler(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}
