// Package climit provides atomically-updated resource counters gating
// process-wide engine resources; the oob package uses one for the OOB
// rewrite region's cursor capacity. Adapted from the teacher's
// limits.Sysatomic_t take/give idiom.
package climit

import "sync/atomic"

// Counter is a numeric limit that can be atomically taken from and given
// back to, used to gate a monotonically-consumed resource (an address
// cursor, an arena slot count) without a mutex.
type Counter struct {
	remaining int64
}

// NewCounter returns a Counter initialized to cap.
func NewCounter(cap int64) *Counter {
	return &Counter{remaining: cap}
}

// Given increases the remaining budget by n.
func (c *Counter) Given(n uint64) {
	atomic.AddInt64(&c.remaining, int64(n))
}

// Taken tries to decrement the budget by n, returning false and leaving
// the counter unchanged if that would drive it negative.
func (c *Counter) Taken(n uint64) bool {
	g := atomic.AddInt64(&c.remaining, -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(&c.remaining, int64(n))
	return false
}

// Take decrements the budget by one and reports whether it succeeded.
func (c *Counter) Take() bool {
	return c.Taken(1)
}

// Give increments the budget by one.
func (c *Counter) Give() {
	c.Given(1)
}

// Remaining returns a snapshot of the current budget.
func (c *Counter) Remaining() int64 {
	return atomic.LoadInt64(&c.remaining)
}

// Engine-wide default resource ceilings. No other package reads these:
// oob sizes its budget from the region size (one slot per 8 bytes), and
// debugmeta's arena has no ceiling.
var (
	// DefaultOOBRegionPages is the page count of a ~1GiB OOB region.
	DefaultOOBRegionPages uint64 = 1 << 18 // ~1GiB / 4KiB pages
	// DefaultDebugArenaRecords is a record-count ceiling for the debug
	// metadata arena.
	DefaultDebugArenaRecords uint64 = 1 << 16
)
