package engine

import "sync"

// Telemetry receives success/failure signals keyed by operation name.
type Telemetry interface {
	JobSucceeded(name string)
	JobFailed(name string)
}

// NopTelemetry discards all signals. Default for tests.
type NopTelemetry struct{}

func (NopTelemetry) JobSucceeded(string) {}
func (NopTelemetry) JobFailed(string)    {}

// Counters is an in-memory Telemetry keeping per-operation tallies.
type Counters struct {
	mu        sync.Mutex
	succeeded map[string]uint64
	failed    map[string]uint64
}

// NewCounters creates empty counters.
func NewCounters() *Counters {
	return &Counters{
		succeeded: make(map[string]uint64),
		failed:    make(map[string]uint64),
	}
}

func (c *Counters) JobSucceeded(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.succeeded[name]++
}

func (c *Counters) JobFailed(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[name]++
}

// Snapshot returns copies of the per-operation success and failure tallies.
func (c *Counters) Snapshot() (succeeded, failed map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	succeeded = make(map[string]uint64, len(c.succeeded))
	for k, v := range c.succeeded {
		succeeded[k] = v
	}
	failed = make(map[string]uint64, len(c.failed))
	for k, v := range c.failed {
		failed[k] = v
	}
	return succeeded, failed
}
