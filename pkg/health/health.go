// Package health serves liveness and readiness probes.
//
// Checks run periodically in the background; the HTTP endpoints only report
// the last known state. A check is marked failing after FailureThreshold
// consecutive errors and passing again after one success.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports a problem with a component, or nil.
type CheckFunc func(ctx context.Context) error

// Kind selects which probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// DefaultFailureThreshold is the number of consecutive failures before a
// check reports unhealthy.
const DefaultFailureThreshold = 3

type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	fails int // only touched by the runner goroutine
	err   atomic.Pointer[string]
}

func (p *probe) run(ctx context.Context, threshold int) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.fn(ctx); err != nil {
		p.fails++
		if p.fails >= threshold {
			msg := err.Error()
			p.err.Store(&msg)
		}
		return
	}
	p.fails = 0
	p.err.Store(nil)
}

// Checker aggregates checks. The zero value is not usable; see New.
type Checker struct {
	threshold int
	ready     atomic.Bool

	mu     sync.RWMutex
	probes []*probe
}

// New returns a Checker that is not ready yet.
func New() *Checker {
	return &Checker{threshold: DefaultFailureThreshold}
}

// Add registers a check of the given kind.
func (c *Checker) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, &probe{name: name, kind: kind, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness flag, used to drain before shutdown.
func (c *Checker) SetReady(v bool) {
	c.ready.Store(v)
}

// CheckOnce runs every check one time.
func (c *Checker) CheckOnce(ctx context.Context) {
	for _, p := range c.snapshot() {
		p.run(ctx, c.threshold)
	}
}

// Run runs all checks every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		c.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (c *Checker) snapshot() []*probe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*probe(nil), c.probes...)
}

func (c *Checker) failures(kind Kind) map[string]string {
	out := make(map[string]string)
	for _, p := range c.snapshot() {
		if p.kind != kind {
			continue
		}
		if msg := p.err.Load(); msg != nil {
			out[p.name] = *msg
		}
	}
	return out
}

// Live serves /livez.
func (c *Checker) Live(w http.ResponseWriter, _ *http.Request) {
	write(w, c.failures(Liveness))
}

// Ready serves /readyz.
func (c *Checker) Ready(w http.ResponseWriter, _ *http.Request) {
	failures := c.failures(Readiness)
	if !c.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	write(w, failures)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func write(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failures}
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
