// Package gstat exposes an engine-wide statistics snapshot, adapted from
// the teacher's stat.Stat_t: the same private-field-plus-writer/reader
// accessor shape, repurposed from file-stat fields to engine counters so
// callers get a stable, copyable snapshot rather than a live, racy struct.
package gstat

import "sync/atomic"

// Stats_t is a point-in-time snapshot of engine activity counters.
type Stats_t struct {
	_poolAllocs   uint64
	_poolFrees    uint64
	_baggyAllocs  uint64
	_baggyFrees   uint64
	_violations   uint64
	_activeObjs   int64
	_oobRewrites  uint64
	_debugRecords uint64
}

// PoolAllocs returns the stored pool_alloc count.
func (st *Stats_t) PoolAllocs() uint64 { return st._poolAllocs }

// PoolFrees returns the stored pool_free count.
func (st *Stats_t) PoolFrees() uint64 { return st._poolFrees }

// BaggyAllocs returns the stored baggy alloc count.
func (st *Stats_t) BaggyAllocs() uint64 { return st._baggyAllocs }

// BaggyFrees returns the stored baggy free count.
func (st *Stats_t) BaggyFrees() uint64 { return st._baggyFrees }

// Violations returns the stored total violation count.
func (st *Stats_t) Violations() uint64 { return st._violations }

// ActiveObjects returns the stored count of currently-live tracked objects.
func (st *Stats_t) ActiveObjects() int64 { return st._activeObjs }

// OOBRewrites returns the stored count of minted OOB rewrite pointers.
func (st *Stats_t) OOBRewrites() uint64 { return st._oobRewrites }

// DebugRecords returns the stored count of retained debug-metadata records.
func (st *Stats_t) DebugRecords() uint64 { return st._debugRecords }

// Counters is the live, atomically-updated counter block engine packages
// increment as they operate; Snapshot copies it into an immutable Stats_t.
type Counters struct {
	PoolAllocs   uint64
	PoolFrees    uint64
	BaggyAllocs  uint64
	BaggyFrees   uint64
	Violations   uint64
	ActiveObjs   int64
	OOBRewrites  uint64
	DebugRecords uint64
}

// Snapshot copies the current values of c into a Stats_t.
func (c *Counters) Snapshot() Stats_t {
	return Stats_t{
		_poolAllocs:   atomic.LoadUint64(&c.PoolAllocs),
		_poolFrees:    atomic.LoadUint64(&c.PoolFrees),
		_baggyAllocs:  atomic.LoadUint64(&c.BaggyAllocs),
		_baggyFrees:   atomic.LoadUint64(&c.BaggyFrees),
		_violations:   atomic.LoadUint64(&c.Violations),
		_activeObjs:   atomic.LoadInt64(&c.ActiveObjs),
		_oobRewrites:  atomic.LoadUint64(&c.OOBRewrites),
		_debugRecords: atomic.LoadUint64(&c.DebugRecords),
	}
}

// Global is the process-wide counter block used by the default engine
// instances constructed through the abi package.
var Global Counters
