// Package ratemonitor samples the ingest pipeline's message counter once
// a second and reports the observed rate. The swap-to-zero read is a
// relaxed, best-effort sample: it is a throughput indicator, not a
// synchronization point, and a message counted in one tick versus the
// next is not meaningful.
package ratemonitor

import (
	"context"
	"sync/atomic"
	"time"
)

// Sampler reports a single rate sample, in messages per tick interval.
type Sampler func(messagesPerSecond uint64)

// Monitor periodically swaps a counter to zero and reports the value it
// read.
type Monitor struct {
	counter  *atomic.Uint64
	interval time.Duration
	sample   Sampler
}

// New returns a Monitor that samples counter every interval and reports
// through sample.
func New(counter *atomic.Uint64, interval time.Duration, sample Sampler) *Monitor {
	return &Monitor{counter: counter, interval: interval, sample: sample}
}

// Run ticks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(m.counter.Swap(0))
		}
	}
}
