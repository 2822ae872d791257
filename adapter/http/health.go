package http

import (
	"context"
	"net/http"
	"time"
)

// Version is reported by /healthz.
const Version = "0.1.0"

// AddCheck registers a readiness check. Checks run in registration order.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checks[name]; !exists {
		s.order = append(s.order, name)
	}
	s.checks[name] = check
}

// handleHealth reports process health and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

// handleReady runs every readiness check with a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	s.mu.RLock()
	names := append([]string(nil), s.order...)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	ready := true
	results := make(map[string]string, len(names))
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			ready = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, map[string]interface{}{
		"ready":  ready,
		"checks": results,
	})
}

// handleLive answers as long as the process serves requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"alive": true})
}
