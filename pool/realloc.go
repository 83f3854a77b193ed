package pool

import (
	"unsafe"

	"guard/cstr"
	"guard/util"
)

// rawCopy copies n bytes between two canonical addresses. Both addresses
// must name live, mapped memory owned by this process -- true for the
// canon field of any object Alloc created, since it is the page-backed
// slab address, never the (possibly PROT_NONE) dangling-detection shadow.
// Objects added by Register have no canon (it is 0).
func rawCopy(dst, src uintptr, n int) {
	if n <= 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(dstSlice, srcSlice)
}

func zeroFill(dst uintptr, n int) {
	if n <= 0 {
		return
	}
	s := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	for i := range s {
		s[i] = 0
	}
}

// Realloc is pool_realloc: ptr==0 behaves as Alloc, newSize<=0 behaves as
// Free (returning 0), and otherwise a fresh object is allocated, the
// lesser of the old and new sizes is copied from the old object's
// canonical storage, and the old object is freed.
func (p *Pool) Realloc(ptr uintptr, newSize int, callerPC uintptr) uintptr {
	if ptr == 0 {
		return p.Alloc(newSize, callerPC)
	}
	if newSize <= 0 {
		p.Free(ptr, callerPC)
		return 0
	}

	p.mu.Lock()
	key := ptr
	var length uintptr
	var obj *object
	found := p.live.Retrieve(&key, &length, &obj)
	p.mu.Unlock()
	if !found || key != ptr {
		panic("pool: realloc of untracked pointer")
	}

	newPtr := p.Alloc(newSize, callerPC)

	p.mu.Lock()
	newKey := newPtr
	var newLen uintptr
	var newObj *object
	p.live.Retrieve(&newKey, &newLen, &newObj)
	p.mu.Unlock()

	rawCopy(newObj.canon, obj.canon, util.Min(obj.length, newSize))

	p.Free(ptr, callerPC)
	return newPtr
}

// Calloc is pool_calloc: allocate nmemb*size bytes, zeroed.
func (p *Pool) Calloc(nmemb, size int, callerPC uintptr) uintptr {
	n := nmemb * size
	ptr := p.Alloc(n, callerPC)

	p.mu.Lock()
	key := ptr
	var length uintptr
	var obj *object
	p.live.Retrieve(&key, &length, &obj)
	p.mu.Unlock()

	zeroFill(obj.canon, n)
	return ptr
}

// Strdup is pool_strdup: allocate strlen(s)+1 bytes (including the
// terminating NUL) and copy s's logical (NUL-truncated) content into the
// new object's canonical storage, using cstr's truncation-safe length
// accounting so an unterminated buf never causes an over-read.
func (p *Pool) Strdup(buf []byte, callerPC uintptr) uintptr {
	s := cstr.Trunc(buf)
	n := s.DupLen()
	ptr := p.Alloc(n, callerPC)

	p.mu.Lock()
	key := ptr
	var length uintptr
	var obj *object
	p.live.Retrieve(&key, &length, &obj)
	p.mu.Unlock()

	dst := unsafe.Slice((*byte)(unsafe.Pointer(obj.canon)), n)
	copy(dst, s)
	dst[len(s)] = 0
	return ptr
}
