package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout is the deadline shared by all probes of one health
// check. A probe still running when it passes is reported as timed out and
// the endpoint answers 503.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one dependency check reported by GET /health. The API
// registers "database" (pgx pool ping) when Postgres is configured and
// "queue" (SQS GetQueueAttributes) when the refresh queue is.
type HealthProbe interface {
	// Name identifies the probe in the response's components map.
	Name() string

	// Check returns nil when the dependency is reachable. It must honor the
	// context deadline; a panic is recovered and reported as a failure.
	Check(ctx context.Context) error
}

// ProbeFunc adapts a plain function to HealthProbe, so callers can register
// methods such as pool.Ping without a wrapper type.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

// Name returns ProbeName.
func (p ProbeFunc) Name() string { return p.ProbeName }

// Check calls Fn.
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

// componentStatus is the health of a single probe.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently under
// healthCheckTimeout and answers 200 when all pass, 503 otherwise. A probe
// still running at the deadline counts as failed.
//
// The body carries the build version and, when probes are registered, one
// component entry per probe. The endpoint is public and mounted at
// GET /health outside the /v1 prefix.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.HealthProbes))
		wg      sync.WaitGroup
	)
	for _, probe := range s.HealthProbes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			var err error
			func() {
				defer func() {
					if rv := recover(); rv != nil {
						err = fmt.Errorf("probe panicked: %v", rv)
					}
				}()
				err = p.Check(ctx)
			}()
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		err, finished := results[probe.Name()]
		switch {
		case !finished:
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
			continue
		}
		resp.Status = "unhealthy"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
