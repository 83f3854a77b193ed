// Package owners tracks the set of slab base addresses owned by a pool:
// a small inline array up to a threshold, then a lock-free hash set, per
// spec §3's pool descriptor ("address-set of owned slabs (small array up
// to a threshold, then a hash set)"). The hash set itself is adapted from
// the teacher's hashtable.Hashtable_t (lock-free chained buckets read via
// atomic pointer loads), specialized to uintptr keys instead of
// interface{} ones.
package owners

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// inlineThreshold is the number of owned slabs tracked in a flat slice
// before Set promotes itself to a hash set.
const inlineThreshold = 8

type elem struct {
	key  uintptr
	next *elem
}

type bucket struct {
	sync.Mutex
	first *elem
}

func loadptr(e **elem) *elem {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	return (*elem)(atomic.LoadPointer(ptr))
}

func storeptr(e **elem, v *elem) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	atomic.StorePointer(ptr, unsafe.Pointer(v))
}

// Set is the address-ownership set described in spec §3. Zero value is a
// ready-to-use empty set.
type Set struct {
	mu     sync.Mutex
	inline []uintptr
	table  []bucket
	n      int
}

func hashOf(key uintptr, nbuckets int) int {
	// Addresses are page-or-better aligned; fold the low bits out before
	// reducing mod bucket count so the common case doesn't collapse into
	// one bucket.
	h := uint64(key) >> 6
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	return int(h % uint64(nbuckets))
}

func (s *Set) promote() {
	s.table = make([]bucket, 64)
	for _, k := range s.inline {
		b := &s.table[hashOf(k, len(s.table))]
		b.first = &elem{key: k, next: b.first}
	}
	s.inline = nil
}

// Add records addr as owned. Returns false if already present.
func (s *Set) Add(addr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		for _, k := range s.inline {
			if k == addr {
				return false
			}
		}
		if len(s.inline) < inlineThreshold {
			s.inline = append(s.inline, addr)
			s.n++
			return true
		}
		s.promote()
	}

	b := &s.table[hashOf(addr, len(s.table))]
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == addr {
			return false
		}
	}
	storeptr(&b.first, &elem{key: addr, next: b.first})
	s.n++
	return true
}

// Remove deletes addr from the set. Returns false if not present.
func (s *Set) Remove(addr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		for i, k := range s.inline {
			if k == addr {
				s.inline = append(s.inline[:i], s.inline[i+1:]...)
				s.n--
				return true
			}
		}
		return false
	}

	b := &s.table[hashOf(addr, len(s.table))]
	b.Lock()
	defer b.Unlock()
	var last *elem
	for e := b.first; e != nil; e = e.next {
		if e.key == addr {
			if last == nil {
				storeptr(&b.first, e.next)
			} else {
				storeptr(&last.next, e.next)
			}
			s.n--
			return true
		}
		last = e
	}
	return false
}

// Contains reports whether addr is a tracked owner. It holds s.mu only
// to read the current table; on the hash-set path it then walks the
// bucket chain without taking the bucket lock, matching the teacher's
// read-without-locking idiom.
func (s *Set) Contains(addr uintptr) bool {
	s.mu.Lock()
	table := s.table
	inline := s.inline
	s.mu.Unlock()

	if table == nil {
		for _, k := range inline {
			if k == addr {
				return true
			}
		}
		return false
	}
	b := &table[hashOf(addr, len(table))]
	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.key == addr {
			return true
		}
	}
	return false
}

// Len returns the number of tracked addresses.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
