// Package faults describes the per-backend fault profiles and the injector
// that turns them into latency, failures, and degraded data.
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Latency is a closed range of simulated response times.
type Latency struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// DocSearchProfile tunes the document search backend.
//
// Checks run in order: unavailable, slow (else normal latency), then the
// independent low-similarity draw after ranking. A degraded result always
// lands above LowSimilarityThreshold.
type DocSearchProfile struct {
	Latency                Latency       `yaml:"latency"`
	Slow                   time.Duration `yaml:"slow"`
	UnavailableRate        float64       `yaml:"unavailableRate"`
	SlowRate               float64       `yaml:"slowRate"`
	LowSimilarityRate      float64       `yaml:"lowSimilarityRate"`
	LowSimilarityPenalty   float64       `yaml:"lowSimilarityPenalty"`
	LowSimilarityThreshold float64       `yaml:"lowSimilarityThreshold"`
}

// DefaultLowSimilarityThreshold is the distance above which a search hit is
// considered a weak match.
const DefaultLowSimilarityThreshold = 0.5

// DirectoryProfile tunes the owner directory backend. It never fails; it
// only serves stale active flags.
type DirectoryProfile struct {
	Latency   Latency `yaml:"latency"`
	StaleRate float64 `yaml:"staleRate"`
}

// HealthProfile tunes the service status backend.
type HealthProfile struct {
	Latency     Latency       `yaml:"latency"`
	Timeout     time.Duration `yaml:"timeout"`
	TimeoutRate float64       `yaml:"timeoutRate"`
}

// Profiles bundles the profiles of all three backends.
type Profiles struct {
	DocSearch DocSearchProfile `yaml:"docSearch"`
	Directory DirectoryProfile `yaml:"directory"`
	Health    HealthProfile    `yaml:"health"`
}

// DefaultProfiles returns the workshop defaults.
func DefaultProfiles() Profiles {
	return Profiles{
		DocSearch: DocSearchProfile{
			Latency:                Latency{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
			Slow:                   3 * time.Second,
			UnavailableRate:        0.05,
			SlowRate:               0.10,
			LowSimilarityRate:      0.15,
			LowSimilarityPenalty:   0.5,
			LowSimilarityThreshold: DefaultLowSimilarityThreshold,
		},
		Directory: DirectoryProfile{
			Latency:   Latency{Min: 20 * time.Millisecond, Max: 100 * time.Millisecond},
			StaleRate: 0.10,
		},
		Health: HealthProfile{
			Latency:     Latency{Min: 30 * time.Millisecond, Max: 150 * time.Millisecond},
			Timeout:     5 * time.Second,
			TimeoutRate: 0.02,
		},
	}
}

// Quiet returns p with every fault probability set to zero. Latency ranges
// are kept.
func (p Profiles) Quiet() Profiles {
	p.DocSearch.UnavailableRate = 0
	p.DocSearch.SlowRate = 0
	p.DocSearch.LowSimilarityRate = 0
	p.Directory.StaleRate = 0
	p.Health.TimeoutRate = 0
	return p
}

// Validate reports every inconsistent setting.
func (p Profiles) Validate() error {
	var errs []error

	rates := []struct {
		name  string
		value float64
	}{
		{"docSearch.unavailableRate", p.DocSearch.UnavailableRate},
		{"docSearch.slowRate", p.DocSearch.SlowRate},
		{"docSearch.lowSimilarityRate", p.DocSearch.LowSimilarityRate},
		{"directory.staleRate", p.Directory.StaleRate},
		{"health.timeoutRate", p.Health.TimeoutRate},
	}
	for _, r := range rates {
		if r.value < 0 || r.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", r.name, r.value))
		}
	}

	latencies := []struct {
		name  string
		value Latency
	}{
		{"docSearch.latency", p.DocSearch.Latency},
		{"directory.latency", p.Directory.Latency},
		{"health.latency", p.Health.Latency},
	}
	for _, l := range latencies {
		if err := l.value.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}

	if p.DocSearch.LowSimilarityPenalty <= 0 {
		errs = append(errs, fmt.Errorf("docSearch.lowSimilarityPenalty must be positive, got %v", p.DocSearch.LowSimilarityPenalty))
	}
	if p.DocSearch.LowSimilarityThreshold < 0 || p.DocSearch.LowSimilarityThreshold > 2 {
		errs = append(errs, fmt.Errorf("docSearch.lowSimilarityThreshold must be within [0,2], got %v", p.DocSearch.LowSimilarityThreshold))
	}
	if p.DocSearch.Slow < p.DocSearch.Latency.Max {
		errs = append(errs, fmt.Errorf("docSearch.slow (%v) must not be below the normal maximum (%v)", p.DocSearch.Slow, p.DocSearch.Latency.Max))
	}
	// The timeout has to stand out in timing data.
	if p.Health.Timeout < 10*p.Health.Latency.Max {
		errs = append(errs, fmt.Errorf("health.timeout (%v) must be at least 10x the normal maximum (%v)", p.Health.Timeout, p.Health.Latency.Max))
	}

	return errors.Join(errs...)
}

func (l Latency) validate() error {
	if l.Min < 0 {
		return fmt.Errorf("min must not be negative, got %v", l.Min)
	}
	if l.Max < l.Min {
		return fmt.Errorf("max (%v) must not be below min (%v)", l.Max, l.Min)
	}
	return nil
}
