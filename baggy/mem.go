package baggy

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func unmapBlock(b []byte) {
	if len(b) == 0 {
		return
	}
	unix.Munmap(b)
}
