// Package cstr provides NUL-terminated byte-string helpers for pool_strdup,
// adapted from the teacher's ustr.Ustr (an immutable path-string type);
// here the same "slice of bytes, truncate/scan for a terminator" shape is
// repurposed for C strings instead of filesystem paths.
package cstr

// CStr is a byte slice that may be NUL-terminated, mirroring how the
// instrumented program represents a C string.
type CStr []uint8

// Trunc returns the prefix of buf up to (not including) the first NUL
// byte, or all of buf if no NUL is present.
func Trunc(buf []uint8) CStr {
	for i := 0; i < len(buf); i++ {
		if buf[i] == 0 {
			return buf[:i]
		}
	}
	return buf
}

// Len returns the length of the string not including any terminator,
// i.e. strlen(s).
func (cs CStr) Len() int {
	return len(Trunc(cs))
}

// DupLen returns the number of bytes pool_strdup must copy: the string
// content plus its terminating NUL.
func (cs CStr) DupLen() int {
	return cs.Len() + 1
}

// Eq compares two CStr values for byte equality over their logical
// (NUL-truncated) content.
func (cs CStr) Eq(other CStr) bool {
	a, b := Trunc(cs), Trunc(other)
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

// String converts the logical (NUL-truncated) content to a Go string.
func (cs CStr) String() string {
	return string(Trunc(cs))
}
