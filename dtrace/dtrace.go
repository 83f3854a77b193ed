// Package dtrace deduplicates violation reports by call site so a tight
// loop that repeatedly triggers the same bug doesn't flood stderr with
// near-identical reports. Adapted from the teacher's caller.Distinct_caller_t,
// which used the same "hash the return-address chain, report only the
// first sighting" idea to dedup kernel callers.
package dtrace

import (
	"fmt"
	"runtime"
	"sync"
)

// Dedup tracks which violation call chains have already been reported.
type Dedup struct {
	mu      sync.Mutex
	Enabled bool
	seen    map[uintptr]bool
}

func pchash(pcs []uintptr) uintptr {
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Len returns the number of distinct call chains recorded so far.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// First reports whether the current call chain (skipping `skip` frames)
// has not been seen before, and if so returns a formatted stack trace for
// the report. Safe to call from a normal goroutine; not async-signal-safe,
// so fault's synchronous handler must call this only on its
// warn-and-continue path, never while still inside the signal context.
func (d *Dedup) First(skip int) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Enabled {
		return true, ""
	}
	if d.seen == nil {
		d.seen = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 32, 32; got >= sz; sz *= 2 {
		pcs = make([]uintptr, sz)
		got = runtime.Callers(skip, pcs)
		if got == 0 {
			return true, ""
		}
	}
	h := pchash(pcs)
	if d.seen[h] {
		return false, ""
	}
	d.seen[h] = true

	frames := runtime.CallersFrames(pcs)
	s := ""
	for {
		fr, more := frames.Next()
		if s == "" {
			s = fmt.Sprintf("%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		} else {
			s += fmt.Sprintf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, s
}

// Reset clears all recorded call chains.
func (d *Dedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = nil
}
