package pool

import (
	"fmt"

	"github.com/pkg/errors"
)

// violationError reports a single pool-engine violation: a double free,
// an invalid free, or an out-of-bounds/misaligned check failure. The
// kind is a human-readable string used only in the error message.
type violationError struct {
	kind string
	addr uintptr
}

func (e *violationError) Error() string {
	return fmt.Sprintf("pool: %s at %#x", e.kind, e.addr)
}

// wrap attaches a stack trace to the violation at the point it was
// raised, so a caller logging with "%+v" gets the call site the
// corruption was first observed at rather than just the message. (abi's
// PoolFree does not log the error; it reports a DoubleFree violation.)
func (e *violationError) wrap() error {
	return errors.WithStack(e)
}

func errDoubleOrInvalidFree(ptr uintptr) error {
	return (&violationError{kind: "double or invalid free", addr: ptr}).wrap()
}

func errOutOfBounds(ptr uintptr) error {
	return (&violationError{kind: "out of bounds access", addr: ptr}).wrap()
}

func errMisaligned(ptr uintptr) error {
	return (&violationError{kind: "misaligned access", addr: ptr}).wrap()
}
