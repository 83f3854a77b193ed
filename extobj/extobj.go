// Package extobj implements the external-object table of spec §4.J: a
// single global splay, identical in schema to the per-pool live index
// (package splay), populated explicitly by the instrumented program when
// it first observes memory the engine didn't allocate -- argv strings,
// environ, and similar. Consulted only by the *ui permissive ABI
// variants and by the fault reporter, never by the strict checks.
package extobj

import "guard/splay"

// Table is the process-wide external-object index.
type Table struct {
	tree splay.Tree[string]
}

// Global is the single external-object table every engine shares, per
// spec §4.J ("a single global splay").
var Global Table

// Register records [addr, addr+length) as an external object named
// label (e.g. "argv[3]"), for diagnostic attachment in fault reports.
func (t *Table) Register(addr, length uintptr, label string) {
	t.tree.Insert(addr, length, label)
}

// Unregister removes the external-object record starting at addr.
func (t *Table) Unregister(addr uintptr) {
	t.tree.Delete(addr)
}

// Lookup reports whether p falls within a registered external object,
// and if so returns its label and extent.
func (t *Table) Lookup(p uintptr) (label string, base, length uintptr, ok bool) {
	key := p
	if !t.tree.Retrieve(&key, &length, &label) {
		return "", 0, 0, false
	}
	return label, key, length, true
}

// Len returns the number of currently registered external objects.
func (t *Table) Len() int { return t.tree.Len() }
