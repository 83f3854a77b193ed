// Package splay implements the interval index described in spec §4.B: a
// top-down splay tree keyed by half-open interval [start, start+len) with
// an attached opaque tag. It backs the per-pool live-object index, the
// per-pool OOB index, and the global external-object table.
//
// Grounded on the teacher's design note (§9, "Splay tree tags"): rather
// than tagging intervals with raw pointers, each interval carries a
// generic Tag value; callers that need pointer-identity semantics store
// an arena index (e.g. debugmeta.ID) as the tag, so freed slots can be
// reused independently of the tree's own lifetime.
package splay

import (
	"sync"
	"sync/atomic"
)

type node[Tag any] struct {
	start, length uintptr
	tag           Tag
	left, right   *node[Tag]
}

// contains reports whether key falls inside this node's interval.
func (n *node[Tag]) contains(key uintptr) bool {
	return key >= n.start && key < n.start+n.length
}

// clone returns a shallow copy of n. splay calls this on every node it is
// about to rewire, so a rotation never mutates a node a concurrent
// NoSplayFind might still be reading out of the currently published root
// -- it builds an entirely new path instead, exactly the "never write to
// a reachable node twice" rule a persistent data structure needs.
func (n *node[Tag]) clone() *node[Tag] {
	c := *n
	return &c
}

// Tree is a splay tree over non-overlapping half-open uintptr intervals.
// The zero value is an empty, ready-to-use tree. Mutating operations take
// the write lock and publish an entirely new, path-copied tree via an
// atomic store to root; NoSplayFind reads root atomically and then walks
// the (now immutable, since nodes are never mutated after being linked
// under a published root) tree with plain loads and no lock at all, for
// use from contexts (the fault handler) that must not block on a mutex a
// non-handler path could be holding (spec §5).
type Tree[Tag any] struct {
	mu   sync.Mutex
	root atomic.Pointer[node[Tag]]
}

// top-down splay: rotate key (or its nearest neighbor) to the root.
// Returns the new root of a freshly path-copied tree -- every node it
// visits is cloned before any of its fields are written, so the input
// root and everything reachable from it are left completely untouched.
// Classic Sleator-Tarjan top-down splay adapted to interval containment
// instead of point equality, and to path copying instead of in-place
// rotation.
func splay[Tag any](root *node[Tag], key uintptr) *node[Tag] {
	if root == nil {
		return nil
	}
	var header node[Tag]
	l, r := &header, &header
	t := root.clone()
	for {
		if key < t.start {
			if t.left == nil {
				break
			}
			if key < t.left.start {
				// rotate right
				y := t.left.clone()
				t.left = y.right
				y.right = t
				t = y
				if t.left == nil {
					break
				}
			}
			r.left = t
			r = t
			t = t.left.clone()
		} else if t.contains(key) {
			break
		} else if key >= t.start+t.length {
			if t.right == nil {
				break
			}
			if key >= t.right.start+t.right.length {
				// rotate left
				y := t.right.clone()
				t.right = y.left
				y.left = t
				t = y
				if t.right == nil {
					break
				}
			}
			l.right = t
			l = t
			t = t.right.clone()
		} else {
			break
		}
	}
	l.right = t.left
	r.left = t.right
	t.left = header.right
	t.right = header.left
	return t
}

// Insert adds the interval [start, start+length) with tag. Behavior is
// undefined if the interval overlaps an existing one (callers are
// expected to have already established non-overlap via a prior
// Retrieve/Delete, matching spec's "intervals may not overlap within a
// single index" invariant).
func (t *Tree[Tag]) Insert(start, length uintptr, tag Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := &node[Tag]{start: start, length: length, tag: tag}
	root := t.root.Load()
	if root == nil {
		t.root.Store(n)
		return
	}
	root = splay(root, start)
	if start < root.start {
		n.left = root.left
		n.right = root
		root.left = nil
	} else {
		n.right = root.right
		n.left = root
		root.right = nil
	}
	t.root.Store(n)
}

// Delete removes the interval that begins at exactly start. It is a
// no-op if no such interval exists.
func (t *Tree[Tag]) Delete(start uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	root := t.root.Load()
	if root == nil {
		return
	}
	root = splay(root, start)
	if root.start != start {
		t.root.Store(root)
		return
	}
	if root.left == nil {
		t.root.Store(root.right)
		return
	}
	right := root.right
	newRoot := splay(root.left, start)
	newRoot.right = right
	t.root.Store(newRoot)
}

// Retrieve locates the interval containing key, splays it to the root,
// overwrites key with the interval's start, writes its length to
// lenOut, writes its tag to tagOut, and reports success.
func (t *Tree[Tag]) Retrieve(key *uintptr, lenOut *uintptr, tagOut *Tag) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	root := t.root.Load()
	if root == nil {
		return false
	}
	root = splay(root, *key)
	t.root.Store(root)
	if !root.contains(*key) {
		return false
	}
	*key = root.start
	*lenOut = root.length
	*tagOut = root.tag
	return true
}

// NoSplayFind performs a plain, non-mutating descent for the interval
// containing key. It takes no lock and never rotates the tree, so it is
// safe to call concurrently with Insert/Delete/Retrieve: it loads root
// exactly once via an atomic pointer load, which establishes a
// happens-before edge against the store that published it, and every
// node reachable from that root is never written to again once
// published (mutating operations always clone before they write, per
// splay's own doc comment above). A concurrent writer publishing a new
// root mid-walk simply leaves this call finishing its descent over the
// older, still-fully-formed snapshot. This is the read path spec §5 and
// §9 require the fault handler to use instead of taking a mutex a
// non-handler path might be holding.
func (t *Tree[Tag]) NoSplayFind(key uintptr) (start, length uintptr, tag Tag, ok bool) {
	n := t.root.Load()
	for n != nil {
		if n.contains(key) {
			return n.start, n.length, n.tag, true
		}
		if key < n.start {
			n = n.left
		} else {
			n = n.right
		}
	}
	var zero Tag
	return 0, 0, zero, false
}

// Len reports the number of intervals currently stored, by full
// in-order walk. Intended for tests and diagnostics, not a hot path.
func (t *Tree[Tag]) Len() int {
	root := t.root.Load()
	n := 0
	var walk func(*node[Tag])
	walk = func(x *node[Tag]) {
		if x == nil {
			return
		}
		n++
		walk(x.left)
		walk(x.right)
	}
	walk(root)
	return n
}
