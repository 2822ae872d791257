package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/faults"
)

// StatusLookup is the outcome of one status check. Service is nil when no
// service matched.
type StatusLookup struct {
	Found     bool           `json:"found"`
	Service   *ServiceStatus `json:"service"`
	ElapsedMS int64          `json:"latency_ms"`
}

// Health is the simulated service status backend.
type Health struct {
	services []ServiceStatus
	byName   map[string]int
	profile  faults.HealthProfile
	inj      *faults.Injector
	logger   *slog.Logger
}

// NewHealth returns a status backend over statuses. A later record with a
// name already seen replaces the earlier one in place.
func NewHealth(statuses []ServiceStatus, profile faults.HealthProfile, inj *faults.Injector, opts ...Option) *Health {
	if inj == nil {
		inj = faults.NewInjector()
	}

	h := &Health{
		byName:  make(map[string]int, len(statuses)),
		profile: profile,
		inj:     inj,
		logger:  buildOptions(opts).logger,
	}
	for _, s := range statuses {
		key := strings.ToLower(s.Name)
		if i, ok := h.byName[key]; ok {
			h.services[i] = s.clone()
			continue
		}
		h.byName[key] = len(h.services)
		h.services = append(h.services, s.clone())
	}
	return h
}

// WithProfile returns a view that shares the status data but applies a
// different fault profile.
func (h *Health) WithProfile(profile faults.HealthProfile) *Health {
	c := *h
	c.profile = profile
	return &c
}

// Profile returns the active fault profile.
func (h *Health) Profile() faults.HealthProfile {
	return h.profile
}

// ServiceCount returns the number of known services.
func (h *Health) ServiceCount() int {
	return len(h.services)
}

// CheckStatus looks up a service by name. An exact case-insensitive match
// wins; otherwise the first service, in fixture order, whose name contains
// the query or is contained in it, so an empty name matches the first
// service. The timeout draw happens before anything
// else and costs the full timeout.
func (h *Health) CheckStatus(ctx context.Context, name string) (*StatusLookup, error) {
	start := h.inj.Now()

	if h.inj.Fire(h.profile.TimeoutRate) {
		h.logger.DebugContext(ctx, "health check hanging", "service", name, "timeout", h.profile.Timeout)
		h.inj.Sleep(h.profile.Timeout)
		return nil, &devhub.TimeoutError{Backend: BackendHealth, Target: name, After: h.profile.Timeout}
	}

	h.inj.Sleep(h.inj.Latency(h.profile.Latency))

	lookup := &StatusLookup{}
	if status, ok := h.match(name); ok {
		lookup.Found = true
		lookup.Service = &status
	}
	lookup.ElapsedMS = h.inj.ElapsedMS(start)
	return lookup, nil
}

func (h *Health) match(name string) (ServiceStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if i, ok := h.byName[key]; ok {
		return h.services[i].clone(), true
	}
	for _, s := range h.services {
		candidate := strings.ToLower(s.Name)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			return s.clone(), true
		}
	}
	return ServiceStatus{}, false
}

// Services returns a copy of every status record in fixture order. No faults
// apply.
func (h *Health) Services() []ServiceStatus {
	out := make([]ServiceStatus, len(h.services))
	for i, s := range h.services {
		out[i] = s.clone()
	}
	return out
}

// Degraded returns the services that are not healthy, in fixture order.
func (h *Health) Degraded() []ServiceStatus {
	var out []ServiceStatus
	for _, s := range h.services {
		switch s.Status {
		case StatusDegraded, StatusUnhealthy, StatusDown:
			out = append(out, s.clone())
		}
	}
	return out
}
