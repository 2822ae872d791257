package faults

import (
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Clock abstracts wall time so simulated latency can be exercised without
// waiting for it.
type Clock interface {
	Now() time.Time
	// Sleep blocks the caller for d. It is not cancellable.
	Sleep(d time.Duration)
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// ManualClock is a Clock whose Sleep advances time instantly.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

// NewManualClock creates a clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the simulated time by d.
func (c *ManualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
}

// Slept returns the total simulated sleep and the number of Sleep calls.
func (c *ManualClock) Slept() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept, c.sleeps
}

// Injector draws fault decisions and latencies from a random source.
// Safe for concurrent use.
type Injector struct {
	mu    sync.Mutex
	src   rand.Source
	clock Clock
}

// Option configures an Injector.
type Option func(*Injector)

// WithSeed makes every draw reproducible.
func WithSeed(seed uint64) Option {
	return func(i *Injector) {
		i.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
}

// WithSource sets the random source.
func WithSource(src rand.Source) Option {
	return func(i *Injector) {
		i.src = src
	}
}

// WithClock sets the clock used for sleeping and elapsed time.
func WithClock(clock Clock) Option {
	return func(i *Injector) {
		i.clock = clock
	}
}

// NewInjector creates an injector. Without options it uses a time-seeded
// source and the system clock.
func NewInjector(opts ...Option) *Injector {
	inj := &Injector{}
	for _, opt := range opts {
		opt(inj)
	}
	if inj.src == nil {
		seed := uint64(time.Now().UnixNano())
		inj.src = rand.NewPCG(seed, seed>>1)
	}
	if inj.clock == nil {
		inj.clock = SystemClock{}
	}
	return inj
}

// Fire performs one Bernoulli draw. p <= 0 never fires and p >= 1 always does.
func (i *Injector) Fire(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return distuv.Bernoulli{P: p, Src: i.src}.Rand() == 1
}

// Latency samples a duration uniformly from r.
func (i *Injector) Latency(r Latency) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	d := distuv.Uniform{Min: float64(r.Min), Max: float64(r.Max), Src: i.src}.Rand()
	return time.Duration(d)
}

// Sleep blocks for d on the injector's clock.
func (i *Injector) Sleep(d time.Duration) {
	if d > 0 {
		i.clock.Sleep(d)
	}
}

// Now returns the clock's current time.
func (i *Injector) Now() time.Time {
	return i.clock.Now()
}

// ElapsedMS returns whole milliseconds since start on the injector's clock.
func (i *Injector) ElapsedMS(start time.Time) int64 {
	return i.clock.Now().Sub(start).Milliseconds()
}
