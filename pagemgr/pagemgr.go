// Package pagemgr implements the page manager of spec §4.A: fixed-size
// virtual page allocation, canonical/shadow remapping of the same
// physical frames, and protect/unprotect of the shadow mapping.
//
// The teacher's mem package plays this role for a freestanding kernel by
// walking its own page tables (mem/dmap.go); a hosted Go process instead
// asks the host kernel to do the aliasing, via memfd_create + two
// independent mmap calls onto the same file descriptor. This is the
// standard userspace technique for "two virtual mappings, one physical
// backing," and it gives pagemgr exactly what spec §4.A asks for: the
// shadow mapping's protection can change without touching the canonical
// one, because they are two distinct VMAs over the same pages.
package pagemgr

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"guard/util"
)

// PageSize is the host's page size, read once at init.
var PageSize = unix.Getpagesize()

// syscallGate bounds the number of concurrent mmap/mprotect syscalls in
// flight, so a pathological instrumented program issuing a storm of
// pool_register_stack calls cannot starve the process with unbounded
// parallel syscalls (SPEC_FULL §5 domain-stack concurrency primitive).
var syscallGate = semaphore.NewWeighted(256)

func gate() func() {
	_ = syscallGate.Acquire(context.Background(), 1)
	return func() { syscallGate.Release(1) }
}

// guardFatal aborts the process. Spec §4.A: "alloc_* fail by aborting
// (out-of-memory is not recoverable here)."
func guardFatal(format string, args ...any) {
	panic(fmt.Sprintf("pagemgr: "+format, args...))
}

// Mapping is a live canonical+shadow page mapping, backed by an anonymous
// memfd so the same physical frames can be mapped a second time.
type Mapping struct {
	mu      sync.Mutex
	fd      int
	size    int
	canon   []byte
	shadow  []byte
	hasShad bool
}

// AllocPage allocates a single zero-filled page with no shadow mapping.
func AllocPage() *Mapping {
	return AllocNPages(1)
}

// AllocNPages allocates n contiguous zero-filled pages.
func AllocNPages(n int) *Mapping {
	defer gate()()

	size := n * PageSize
	fd, err := unix.MemfdCreate("guard-canon", 0)
	if err != nil {
		guardFatal("memfd_create: %v", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		guardFatal("ftruncate: %v", err)
	}
	canon, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		guardFatal("mmap canon: %v", err)
	}
	return &Mapping{fd: fd, size: size, canon: canon}
}

// FreePage releases the canonical mapping. Per spec §4.A, if a shadow
// mapping was ever created for dangling-pointer detection it is NEVER
// released here -- it stays reserved and PROT_NONE so future accesses
// through stale shadow pointers keep trapping. The underlying memfd (and
// therefore its physical frames) is only released once both mappings
// are gone, which for a shadowed object happens only at process exit.
func (m *Mapping) FreePage() {
	defer gate()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canon != nil {
		unix.Munmap(m.canon)
		m.canon = nil
	}
	if !m.hasShad {
		unix.Close(m.fd)
		m.fd = -1
	}
}

// Canon returns the canonical mapping's base address and length.
func (m *Mapping) Canon() (base uintptr, length int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canon == nil {
		return 0, 0
	}
	return addrOf(m.canon), m.size
}

// RemapObject creates a second mapping ("shadow") of the same physical
// frames backing this Mapping. The shadow always spans the whole mapping
// from offset 0, so its base corresponds to the canonical base; length is
// not used. It returns the shadow mapping's base address. The shadow mapping can be independently
// protected/unprotected without affecting the canonical one.
func (m *Mapping) RemapObject(length int) (shadowBase uintptr) {
	defer gate()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canon == nil {
		guardFatal("remap of freed object")
	}
	shadow, err := unix.Mmap(m.fd, 0, m.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		guardFatal("mmap shadow: %v", err)
	}
	m.shadow = shadow
	m.hasShad = true
	return addrOf(shadow)
}

// ProtectShadow marks the shadow mapping's pages inaccessible
// (PROT_NONE); any subsequent access through the shadow pointer raises
// SIGBUS/SIGSEGV, which fault.Handler intercepts.
func (m *Mapping) ProtectShadow() {
	defer gate()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasShad {
		return
	}
	if err := unix.Mprotect(m.shadow, unix.PROT_NONE); err != nil {
		guardFatal("mprotect shadow: %v", err)
	}
}

// UnprotectShadow restores read/write access to the shadow mapping. Its
// only caller is slabpool's Slab.Unprotect; fault.Handler does not call it.
func (m *Mapping) UnprotectShadow() {
	defer gate()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasShad {
		return
	}
	if err := unix.Mprotect(m.shadow, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		guardFatal("mprotect shadow: %v", err)
	}
}

// AllocRegion reserves a PROT_NONE region of the given size with no
// physical backing (MAP_NORESERVE), used by oob for its invalid-pointer
// region. (The baggy shadow table uses AllocLazyRegion.)
func AllocRegion(size int) []byte {
	defer gate()()

	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		guardFatal("mmap region: %v", err)
	}
	return b
}

// AllocAlignedRegion reserves a region of exactly size bytes aligned to
// align (a power of two), backed by MAP_ANON|MAP_PRIVATE, readable and
// writable. Used by the baggy engine for power-of-two-aligned
// allocations (spec §4.H).
func AllocAlignedRegion(size, align int) []byte {
	defer gate()()

	// Over-allocate, then trim the unaligned head/tail. munmap of a
	// sub-range of an existing mapping is well defined on Linux.
	raw, err := unix.Mmap(-1, 0, size+align, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		guardFatal("mmap aligned: %v", err)
	}
	base := addrOf(raw)
	aligned := util.Roundup(base, uintptr(align))
	headTrim := int(aligned - base)
	if headTrim > 0 {
		unix.Munmap(raw[:headTrim])
	}
	tailStart := headTrim + size
	if tailStart < len(raw) {
		unix.Munmap(raw[tailStart:])
	}
	return raw[headTrim:tailStart]
}

// AllocLazyRegion reserves a readable/writable region of the given size
// backed lazily (MAP_NORESERVE): the kernel commits physical pages only
// as they are first touched, letting a huge reservation like the baggy
// shadow table (spec §4.G) cost no memory until used.
func AllocLazyRegion(size int) []byte {
	defer gate()()

	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		guardFatal("mmap lazy region: %v", err)
	}
	return b
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
