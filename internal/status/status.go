// Package status aggregates dependency checks into a summary served on /status.
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// States reported by Summary.State and Component.Status.
const (
	Operational = "operational"
	Degraded    = "degraded"
)

const (
	defaultTimeout  = 2 * time.Second
	defaultCacheTTL = 10 * time.Second
)

// Summary captures an overview of the service and its dependencies.
type Summary struct {
	State      string      `json:"state"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Components []Component `json:"components"`
}

// Component represents the status of an individual subsystem.
type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Check tests one dependency. A nil error means operational.
type Check func(ctx context.Context) error

// Checker runs registered checks concurrently and caches the result briefly.
type Checker struct {
	timeout  time.Duration
	cacheTTL time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	checks  map[string]Check
	cached  Summary
	expires time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheTTL sets how long a summary is reused; zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) {
		if d >= 0 {
			c.cacheTTL = d
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Checker) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewChecker builds an empty Checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout:  defaultTimeout,
		cacheTTL: defaultCacheTTL,
		clock:    time.Now,
		checks:   map[string]Check{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers check under name, replacing any previous one.
func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.expires = time.Time{}
}

// Summary runs every check, or returns the cached summary while it is fresh.
func (c *Checker) Summary(ctx context.Context) Summary {
	now := c.clock()
	c.mu.Lock()
	if now.Before(c.expires) {
		s := cloneSummary(c.cached)
		c.mu.Unlock()
		return s
	}
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.Unlock()
	sort.Strings(names)

	components := make([]Component, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			comp := Component{Name: name, Status: Operational}
			if err := checks[name](cctx); err != nil {
				comp.Status = Degraded
				comp.Error = err.Error()
			}
			components[i] = comp
			// never fail the group so one check cannot cancel the others
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{State: Operational, UpdatedAt: now, Components: components}
	for _, comp := range components {
		if comp.Status != Operational {
			summary.State = Degraded
			break
		}
	}

	c.mu.Lock()
	c.cached = summary
	c.expires = now.Add(c.cacheTTL)
	c.mu.Unlock()
	return cloneSummary(summary)
}

func cloneSummary(s Summary) Summary {
	out := s
	if len(s.Components) > 0 {
		out.Components = append([]Component(nil), s.Components...)
	}
	return out
}
