// Package tailcache holds the most recent C events in a fixed-size ring,
// giving pull clients a recovery path independent of the broadcaster:
// push subscribers are best-effort, the tail cache is not.
package tailcache

import (
	"sort"
	"sync"

	"github.com/quantfeed/mbo-gateway/internal/record"
)

// Capacity is the ring's fixed size, C in the feed's design notes.
const Capacity = 20

// Cache is a bounded ring buffer of the most recent events, indexed by
// the caller's arrival index modulo Capacity. A single mutex guards both Put and
// Snapshot, keeping Put O(1) and Snapshot O(Capacity); Snapshot copies
// values out from under the lock so it is linearizable with respect to
// concurrent Puts without holding the lock during the copy's caller use.
type Cache struct {
	mu   sync.Mutex
	slots [Capacity]*record.MBOEvent
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// Put stores ev at slot i mod Capacity, overwriting whatever was there.
func (c *Cache) Put(i uint64, ev *record.MBOEvent) {
	stored := ev.Clone()
	c.mu.Lock()
	c.slots[i%Capacity] = &stored
	c.mu.Unlock()
}

// Snapshot returns every populated slot, sorted ascending by sequence.
func (c *Cache) Snapshot() []*record.MBOEvent {
	c.mu.Lock()
	out := make([]*record.MBOEvent, 0, Capacity)
	for _, ev := range c.slots {
		if ev != nil {
			clone := ev.Clone()
			out = append(out, &clone)
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
